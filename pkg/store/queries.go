package store

const queryLoadJobDefinitions = `
SELECT
    job_id, bean_name, description,
    cron_expression, cron_description, target_description,
    enabled
FROM t_batch_job_config
ORDER BY job_id
`

const queryFindJobDefinition = `
SELECT
    job_id, bean_name, description,
    cron_expression, cron_description, target_description,
    enabled
FROM t_batch_job_config
WHERE job_id = $1
`

const queryFindMailConfig = `
SELECT
    job_id, email_from, mail_to_developer, email_to_user, mail_content_for_user
FROM t_batch_mail_config
WHERE job_id = $1
`

const queryPing = `SELECT 1`
