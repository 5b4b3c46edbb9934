package lifecycle

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/seskeep/seskeep/internal/snapshot"
)

type fakeDriver struct {
	calls      []string
	clearErr   error
	restoreErr error
	captureErr error
}

func (f *fakeDriver) ClearEnvironment(context.Context) error {
	f.calls = append(f.calls, "clear")
	return f.clearErr
}

func (f *fakeDriver) BlankPage(context.Context) error {
	f.calls = append(f.calls, "blank")
	return nil
}

func (f *fakeDriver) Capture(context.Context) (*snapshot.Snapshot, error) {
	f.calls = append(f.calls, "capture")
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	snap := snapshot.New()
	snap.Origins = []snapshot.OriginStorage{{Origin: "https://example.com", Local: map[string]string{"t": "1"}}}
	return snap, nil
}

func (f *fakeDriver) Restore(_ context.Context, _ *snapshot.Snapshot) error {
	f.calls = append(f.calls, "restore")
	return f.restoreErr
}

func (f *fakeDriver) Page() *rod.Page { return nil }

func noopSetup(counter *int) SetupProc {
	return func(context.Context, *rod.Page) error {
		*counter++
		return nil
	}
}

func TestRun_MissRunsSetupAndCaptures(t *testing.T) {
	d := &fakeDriver{}
	setups := 0

	res, err := Run(context.Background(), d, Request{
		Key:   "user",
		Setup: noopSetup(&setups),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceSetup {
		t.Fatalf("source: got %s", res.Source)
	}
	if setups != 1 {
		t.Fatalf("setup invocations: got %d, want 1", setups)
	}
	if res.Snapshot == nil || len(res.Snapshot.Origins) != 1 {
		t.Fatalf("snapshot: %+v", res.Snapshot)
	}

	// Environment cleared before setup, page blank after.
	want := []string{"clear", "capture", "blank"}
	if !reflect.DeepEqual(d.calls, want) {
		t.Fatalf("calls: got %v, want %v", d.calls, want)
	}
}

func TestRun_HitRestoresWithoutSetup(t *testing.T) {
	d := &fakeDriver{}
	setups := 0
	cached := snapshot.New()

	res, err := Run(context.Background(), d, Request{
		Key:    "user",
		Cached: cached,
		Setup:  noopSetup(&setups),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceRestore {
		t.Fatalf("source: got %s", res.Source)
	}
	if setups != 0 {
		t.Fatalf("setup must not run on a hit, ran %d times", setups)
	}
	if res.Snapshot != cached {
		t.Fatal("restore must yield the cached snapshot")
	}

	want := []string{"clear", "restore", "blank"}
	if !reflect.DeepEqual(d.calls, want) {
		t.Fatalf("calls: got %v, want %v", d.calls, want)
	}
}

func TestRun_NoValidateCachesUnconditionally(t *testing.T) {
	d := &fakeDriver{}
	setups := 0

	res, err := Run(context.Background(), d, Request{Key: "u", Setup: noopSetup(&setups)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Snapshot == nil {
		t.Fatal("no snapshot to cache")
	}
}

func TestRun_ValidateFalseAfterSetupIsFatal(t *testing.T) {
	d := &fakeDriver{}
	setups := 0

	_, err := Run(context.Background(), d, Request{
		Key:   "user",
		Setup: noopSetup(&setups),
		Validate: func(context.Context, *rod.Page) (bool, error) {
			return false, nil
		},
	})
	if !errors.Is(err, ErrValidateAfterSetup) {
		t.Fatalf("got %v, want ErrValidateAfterSetup", err)
	}
	if setups != 1 {
		t.Fatalf("setup must not retry after immediate validation failure, ran %d times", setups)
	}
}

func TestRun_ValidateErrorAfterSetupIsFatal(t *testing.T) {
	d := &fakeDriver{}
	setups := 0

	_, err := Run(context.Background(), d, Request{
		Key:   "user",
		Setup: noopSetup(&setups),
		Validate: func(context.Context, *rod.Page) (bool, error) {
			return true, errors.New("element not found")
		},
	})
	if !errors.Is(err, ErrValidateAfterSetup) {
		t.Fatalf("got %v, want ErrValidateAfterSetup", err)
	}
}

func TestRun_ValidateFailAfterRestoreRetriesOnce(t *testing.T) {
	d := &fakeDriver{}
	setups := 0
	validations := 0

	res, err := Run(context.Background(), d, Request{
		Key:    "user",
		Cached: snapshot.New(),
		Setup:  noopSetup(&setups),
		Validate: func(context.Context, *rod.Page) (bool, error) {
			validations++
			// Fail for the restored session, pass for the fresh one.
			return validations > 1, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceRetry {
		t.Fatalf("source: got %s", res.Source)
	}
	if !res.Invalidated {
		t.Fatal("result must mark the cached entry invalidated")
	}
	if setups != 1 {
		t.Fatalf("setup re-runs exactly once, ran %d times", setups)
	}
	if validations != 2 {
		t.Fatalf("validations: got %d, want 2", validations)
	}

	// restore → validate fails → clear → setup → capture → validate → blank
	want := []string{"clear", "restore", "blank", "clear", "capture", "blank", "blank"}
	if !reflect.DeepEqual(d.calls, want) {
		t.Fatalf("calls: got %v, want %v", d.calls, want)
	}
}

func TestRun_ValidateFailTwiceIsFatal(t *testing.T) {
	d := &fakeDriver{}
	setups := 0

	_, err := Run(context.Background(), d, Request{
		Key:    "user",
		Cached: snapshot.New(),
		Setup:  noopSetup(&setups),
		Validate: func(context.Context, *rod.Page) (bool, error) {
			return false, nil
		},
	})
	if !errors.Is(err, ErrValidateAfterRetry) {
		t.Fatalf("got %v, want ErrValidateAfterRetry", err)
	}
	if setups != 1 {
		t.Fatalf("setup runs exactly once on the retry path, ran %d times", setups)
	}
}

func TestRun_SetupErrorIsFatal(t *testing.T) {
	d := &fakeDriver{}
	cause := errors.New("login button missing")

	_, err := Run(context.Background(), d, Request{
		Key: "user",
		Setup: func(context.Context, *rod.Page) error {
			return cause
		},
	})
	if !errors.Is(err, ErrSetupFailed) {
		t.Fatalf("got %v, want ErrSetupFailed", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("underlying cause lost: %v", err)
	}
}

func TestRun_RestoreErrorFallsBackToSetup(t *testing.T) {
	d := &fakeDriver{restoreErr: errors.New("storage disabled for origin")}
	setups := 0

	res, err := Run(context.Background(), d, Request{
		Key:    "user",
		Cached: snapshot.New(),
		Setup:  noopSetup(&setups),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceRetry {
		t.Fatalf("source: got %s", res.Source)
	}
	if setups != 1 {
		t.Fatalf("setup runs once after a failed restore, ran %d times", setups)
	}
}

func TestRun_ClearErrorAborts(t *testing.T) {
	d := &fakeDriver{clearErr: errors.New("browser gone")}

	_, err := Run(context.Background(), d, Request{
		Key:   "user",
		Setup: func(context.Context, *rod.Page) error { return nil },
	})
	if err == nil {
		t.Fatal("expected error when environment clearing fails")
	}
}
