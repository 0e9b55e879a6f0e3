package reminder

import (
	"context"
	"sync"
	"time"

	"github.com/julianstephens/habitnudge/internal/errors"
)

// RunPass runs the engines concurrently as of now and returns their reports
// in the order given. Setup errors of every engine are joined.
func RunPass(ctx context.Context, now time.Time, engines ...Engine) ([]*Report, error) {
	reports := make([]*Report, len(engines))
	errs := make([]error, len(engines))

	var wg sync.WaitGroup
	for i, e := range engines {
		wg.Add(1)
		go func(i int, e Engine) {
			defer wg.Done()
			reports[i], errs[i] = e.Run(ctx, now)
		}(i, e)
	}
	wg.Wait()

	return reports, errors.Join(errs...)
}
