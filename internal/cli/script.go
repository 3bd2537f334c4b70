package cli

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/marcelocantos/spm/internal/script"
)

// RunScript executes a pipeline script and streams the output of the
// stage it binds to "pipeline".
func RunScript(rt *Runtime, path string) int {
	sess := script.New(
		script.WithEnv(rt.Env),
		script.WithLogger(rt.Log),
		script.WithAudit(rt.Audit),
		script.WithOutput(rt.Stderr),
	)
	defer func() {
		if err := sess.Close(); err != nil {
			rt.Log.Warn("closing script files", zap.Error(err))
		}
	}()

	start := time.Now()
	st, err := sess.ExecFile(path)
	if err != nil {
		return resolveError(rt.Stderr, err)
	}
	if st == nil {
		return 0
	}

	r, err := st.Stdout()
	if err != nil {
		return resolveError(rt.Stderr, err)
	}
	_, copyErr := io.Copy(rt.Stdout, r)
	_, _, err = st.Wait()
	sess.Record(st.Chain(), err, time.Since(start))
	if err == nil && copyErr != nil {
		err = fmt.Errorf("copy output: %w", copyErr)
	}
	return resolveError(rt.Stderr, err)
}
