package tasks

import (
	"fmt"
	"time"

	"github.com/knpiano/knbatch/pkg/database"
	"github.com/knpiano/knbatch/pkg/jobs"
)

// Register binds the built-in heartbeat and every configured correction into
// handlers. Corrections are registered under their own handler reference.
func Register(handlers *jobs.HandlerRegistry, db database.DBTX, corrections []CorrectionSpec, loc *time.Location) error {
	if db == nil {
		return fmt.Errorf("handler database is not configured")
	}

	if err := handlers.Register(PingHandlerRef, NewPing(db)); err != nil {
		return err
	}

	for _, spec := range corrections {
		c, err := NewCorrection(spec, db, loc)
		if err != nil {
			return err
		}
		if err := handlers.Register(spec.Handler, c); err != nil {
			return err
		}
	}
	return nil
}
