package logger

import (
	"context"
	"testing"
)

// FromContext must be cheap enough to call on entry to every operation, even
// when there is no span on the context.
func BenchmarkWrappedLogger_FromContextNoSpan(b *testing.B) {
	New("NOOP")

	ctx := context.Background()
	for n := 0; n < b.N; n++ {
		func(inctx context.Context) {
			log := Sugar.FromContext(inctx)
			defer log.Close()
		}(ctx)
	}
}

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"NOOP", "TEST", "INFO"} {
		New(level)
		if Sugar == nil || Plain == nil {
			t.Fatalf("logger not initialised for level %s", level)
		}
	}
}
