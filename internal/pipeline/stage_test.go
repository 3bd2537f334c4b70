package pipeline

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestRunEcho(t *testing.T) {
	s := mustRun(t, []string{"echo", "-n", "hello world"})
	if s.State() != NotStarted {
		t.Fatalf("expected not-started before any use, got %s", s.State())
	}
	if got := readAll(t, s); got != "hello world" {
		t.Errorf("expected %q, got %q", "hello world", got)
	}
	if _, _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
	if s.State() != Exited {
		t.Errorf("expected exited after wait, got %s", s.State())
	}
}

func TestPipeGzipRoundTrip(t *testing.T) {
	requireTools(t, "gzip", "zcat")
	tail, err := Pipe(Args{"echo", "-n", "foo"}, Args{"gzip"}, Args{"zcat"})
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := tail.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "foo" {
		t.Errorf("expected foo, got %q", out)
	}
}

func TestPipeWithoutInput(t *testing.T) {
	requireTools(t, "gzip", "zcat")
	tail, err := Pipe(Args{"gzip"}, Args{"zcat"})
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := tail.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty output, got %q", out)
	}
}

func TestStdoutReadClosesChainInput(t *testing.T) {
	// Nobody writes to cat; reading must not hang.
	s := mustRun(t, []string{"cat"})
	if got := readAll(t, s); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
	if _, _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestStdoutDoesNotSpawn(t *testing.T) {
	s := mustRun(t, []string{"true"})
	r, err := s.Stdout()
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != NotStarted || s.Pid() != 0 {
		t.Errorf("Stdout alone must not spawn: state %s pid %d", s.State(), s.Pid())
	}
	if s.Running() {
		t.Error("unspawned stage reported running")
	}
	if _, ok := s.ExitCode(); ok {
		t.Error("unspawned stage reported an exit code")
	}
	r.Close()
	if _, _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestWaitReportsFailure(t *testing.T) {
	s := mustRun(t, []string{"false"})
	_, _, err := s.Wait()
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if pe.Code != 1 || pe.ExitCode() != 1 {
		t.Errorf("expected code 1, got %d", pe.Code)
	}
	if pe.Stage != s {
		t.Error("error should name the failing stage")
	}
	if !strings.Contains(err.Error(), `"false" returned non-zero exit status 1`) {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestWaitNamesFailingMiddleStage(t *testing.T) {
	tail, err := Pipe(Args{"true"}, Args{"false"}, Args{"true"})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = tail.Wait()
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if pe.Stage != tail.Chain().Stages()[1] {
		t.Errorf("expected the false stage, got %s", pe.Stage.command())
	}
}

func TestWaitScansFromTail(t *testing.T) {
	tail, err := Pipe(Args{"sh", "-c", "exit 3"}, Args{"sh", "-c", "exit 5"}, Args{"true"})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = tail.Wait()
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if pe.Code != 5 {
		t.Errorf("expected the stage nearest the tail (5), got %d", pe.Code)
	}
	codes, ok := tail.Chain().ExitCodes()
	want := []int{3, 5, 0}
	for i := range want {
		if !ok[i] || codes[i] != want[i] {
			t.Errorf("stage %d: expected %d, got %d (ok=%v)", i, want[i], codes[i], ok[i])
		}
	}
}

func TestWaitIsCached(t *testing.T) {
	s := mustRun(t, []string{"sh", "-c", "printf out; exit 4"})
	out1, _, err1 := s.Wait()
	out2, _, err2 := s.Wait()
	if err1 == nil || err1 != err2 {
		t.Errorf("expected the same error twice, got %v and %v", err1, err2)
	}
	if string(out1) != "out" || string(out2) != "out" {
		t.Errorf("expected cached output, got %q and %q", out1, out2)
	}
}

func TestStdoutToFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s := mustRun(t, []string{"echo", "hi"}, WithStdout(File(f)))
	out, _, err := s.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if out != nil {
		t.Errorf("expected nil stdout for a file route, got %q", out)
	}
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hi\n" {
		t.Errorf("expected file to hold hi, got %q", data)
	}
}

func TestSetStdoutSpawns(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s := mustRun(t, []string{"echo", "redirected"})
	if err := s.SetStdout(File(f)); err != nil {
		t.Fatal(err)
	}
	if s.State() == NotStarted {
		t.Error("SetStdout should spawn the stage")
	}
	if _, _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(f.Name())
	if string(data) != "redirected\n" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestSetStdinFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	s := mustRun(t, []string{"cat"})
	if err := s.SetStdin(File(f)); err != nil {
		t.Fatal(err)
	}
	w, err := s.Stdin()
	if err != nil {
		t.Fatal(err)
	}
	if w != nil {
		t.Error("expected no input writer for a file route")
	}
	out, _, err := s.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "abc" {
		t.Errorf("expected abc, got %q", out)
	}
}

func TestSetStdinGoesToHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in")
	if err := os.WriteFile(path, []byte("shout"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tail, err := Pipe(Args{"cat"}, Args{"tr", "a-z", "A-Z"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tail.SetStdin(File(f)); err != nil {
		t.Fatal(err)
	}
	head := tail.Chain().Head()
	if head.State() == NotStarted {
		t.Error("expected the head to be spawned")
	}
	if tail.State() != NotStarted {
		t.Error("expected the tail to stay unspawned")
	}
	out, _, err := tail.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "SHOUT" {
		t.Errorf("expected SHOUT, got %q", out)
	}
}

func TestWriteStdinThenWait(t *testing.T) {
	tail, err := Pipe(Args{"cat"}, Args{"cat"})
	if err != nil {
		t.Fatal(err)
	}
	w, err := tail.Stdin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(w, "ping"); err != nil {
		t.Fatal(err)
	}
	w.Close()
	out, _, err := tail.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "ping" {
		t.Errorf("expected ping, got %q", out)
	}
}

func TestStderrCapture(t *testing.T) {
	s := mustRun(t, []string{"sh", "-c", "echo oops >&2; exit 2"}, WithStderr(Piped()))
	_, stderr, err := s.Wait()
	if string(stderr) != "oops\n" {
		t.Errorf("expected captured stderr, got %q", stderr)
	}
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if pe.Code != 2 || string(pe.Stderr) != "oops\n" {
		t.Errorf("unexpected error contents: code %d stderr %q", pe.Code, pe.Stderr)
	}
	if string(s.Stderr()) != "oops\n" {
		t.Errorf("Stderr() = %q", s.Stderr())
	}
}

func TestStderrNotPipedIsNil(t *testing.T) {
	s := mustRun(t, []string{"true"})
	_, stderr, err := s.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if stderr != nil {
		t.Errorf("expected nil stderr, got %q", stderr)
	}
}

func TestExitCodePolling(t *testing.T) {
	s := mustRun(t, []string{"true"})
	if err := s.Materialize(); err != nil {
		t.Fatal(err)
	}
	if s.Pid() == 0 {
		t.Error("expected a pid after materialize")
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		code, ok := s.ExitCode()
		if ok {
			if code != 0 {
				t.Errorf("expected 0, got %d", code)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("process never reported an exit code")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s.State() != Exited || s.Running() {
		t.Errorf("expected exited, got %s", s.State())
	}
	if _, _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestRunningWhileBlocked(t *testing.T) {
	s := mustRun(t, []string{"cat"})
	w, err := s.Stdin()
	if err != nil {
		t.Fatal(err)
	}
	if !s.Running() {
		t.Error("cat waiting on stdin should be running")
	}
	if _, ok := s.ExitCode(); ok {
		t.Error("running process reported an exit code")
	}
	w.Close()
	if _, _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestSignalExitCode(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("signal exit codes are reported on linux")
	}
	s := mustRun(t, []string{"sh", "-c", "kill -9 $$"})
	_, _, err := s.Wait()
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %v", err)
	}
	if pe.Code != -9 {
		t.Errorf("expected -9, got %d", pe.Code)
	}
	if !strings.Contains(err.Error(), "died with signal 9") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestLaunchFailureIsCached(t *testing.T) {
	s := mustRun(t, []string{"spm-test-no-such-command"})
	err1 := s.Materialize()
	if !errors.Is(err1, exec.ErrNotFound) {
		t.Fatalf("expected exec.ErrNotFound, got %v", err1)
	}
	if err2 := s.Materialize(); err2 != err1 {
		t.Errorf("expected the cached error, got %v", err2)
	}
	if s.State() != NotStarted {
		t.Errorf("failed launch should leave the stage not-started, got %s", s.State())
	}
	if _, _, err := s.Wait(); err != err1 {
		t.Errorf("Wait should return the launch error, got %v", err)
	}
}

func TestLaunchFailureMidChain(t *testing.T) {
	tail, err := Pipe(Args{"echo", "x"}, Args{"spm-test-no-such-command"}, Args{"cat"})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := tail.Wait(); !errors.Is(err, exec.ErrNotFound) {
		t.Fatalf("expected exec.ErrNotFound, got %v", err)
	}
	if tail.State() != NotStarted {
		t.Error("stages after the failed launch must not be spawned")
	}
}

func TestRunEmptyCommand(t *testing.T) {
	for _, argv := range [][]string{nil, {}, {""}} {
		_, err := Run(argv)
		if !IsConfig(err) || !errors.Is(err, ErrEmptyCommand) {
			t.Errorf("Run(%q): expected empty-command ConfigError, got %v", argv, err)
		}
	}
}

func TestRunInvalidRoutes(t *testing.T) {
	up := mustRun(t, []string{"true"})
	cases := map[string]Option{
		"nil stdin file":   WithStdin(File(nil)),
		"nil stdout file":  WithStdout(File(nil)),
		"upstream stdout":  WithStdout(From(up)),
		"upstream stderr":  WithStderr(From(up)),
		"nil upstream":     WithStdin(From(nil)),
		"bad env variable": WithEnv(MergeEnv(map[string]string{"A=B": "x"})),
	}
	for name, opt := range cases {
		if _, err := Run([]string{"cat"}, opt); !IsConfig(err) {
			t.Errorf("%s: expected ConfigError, got %v", name, err)
		}
	}
}

func TestWithStdinFromUpstream(t *testing.T) {
	a := mustRun(t, []string{"echo", "-n", "upstream"})
	b := mustRun(t, []string{"cat"}, WithStdin(From(a)))
	if b.Chain() != a.Chain() || b.Chain().Len() != 2 {
		t.Fatal("expected both stages in one chain")
	}
	out, _, err := b.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "upstream" {
		t.Errorf("expected upstream, got %q", out)
	}
}

func TestAttachSplicesWholeChain(t *testing.T) {
	a := mustRun(t, []string{"echo", "-n", "abc"})
	tail, err := Pipe(Args{"tr", "a-z", "A-Z"}, Args{"cat"})
	if err != nil {
		t.Fatal(err)
	}
	head := tail.Chain().Head()
	got, err := a.Attach(head)
	if err != nil {
		t.Fatal(err)
	}
	if got != head {
		t.Error("Attach should return the stage it was given")
	}
	if tail.Chain() != a.Chain() || tail.Chain().Len() != 3 {
		t.Fatalf("expected a three-stage chain, got %d", tail.Chain().Len())
	}
	out, _, err := tail.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "ABC" {
		t.Errorf("expected ABC, got %q", out)
	}
}

func TestPipeSingleConsumer(t *testing.T) {
	a := mustRun(t, []string{"echo", "once"})
	if _, err := a.Pipe([]string{"cat"}); err != nil {
		t.Fatal(err)
	}
	_, err := a.Pipe([]string{"cat"})
	var ae *AttachError
	if !errors.As(err, &ae) || !errors.Is(err, ErrStdoutConsumed) {
		t.Errorf("expected AttachError for a second consumer, got %v", err)
	}
	if _, err := a.Stdout(); !isStateError(err) {
		t.Errorf("expected StateError reading an intermediate stdout, got %v", err)
	}
	if _, _, err := a.Wait(); !isStateError(err) {
		t.Errorf("expected StateError waiting on a non-tail stage, got %v", err)
	}
}

func TestPipeAfterStdoutHandedOut(t *testing.T) {
	a := mustRun(t, []string{"echo", "x"})
	if _, err := a.Stdout(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Pipe([]string{"cat"}); !errors.Is(err, ErrStdoutConsumed) {
		t.Errorf("expected ErrStdoutConsumed, got %v", err)
	}
	if _, _, err := a.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestPipeEmptyArgs(t *testing.T) {
	a := mustRun(t, []string{"true"})
	if _, err := a.Pipe(nil); !IsConfig(err) {
		t.Errorf("expected ConfigError, got %v", err)
	}
}

func TestAttachFromRunningStage(t *testing.T) {
	a := mustRun(t, []string{"cat"})
	if err := a.Materialize(); err != nil {
		t.Fatal(err)
	}
	b := mustRun(t, []string{"cat"})
	_, err := a.Attach(b)
	var ae *AttachError
	if !errors.As(err, &ae) || !errors.Is(err, ErrStageStarted) {
		t.Errorf("expected AttachError for a running upstream, got %v", err)
	}
	if _, _, err := a.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestAttachIntoRunningStage(t *testing.T) {
	b := mustRun(t, []string{"cat"})
	if err := b.Materialize(); err != nil {
		t.Fatal(err)
	}
	a := mustRun(t, []string{"echo", "late"})
	if _, err := a.Attach(b); !errors.Is(err, ErrStageStarted) {
		t.Errorf("expected ErrStageStarted, got %v", err)
	}
	if _, _, err := b.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestAttachIntoRedirectedInput(t *testing.T) {
	f, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	a := mustRun(t, []string{"echo", "x"})
	b := mustRun(t, []string{"cat"}, WithStdin(File(f)))
	var ae *AttachError
	if _, err := a.Attach(b); !errors.As(err, &ae) {
		t.Errorf("expected AttachError, got %v", err)
	}
}

func TestAttachSameChain(t *testing.T) {
	a := mustRun(t, []string{"echo", "x"})
	b, err := a.Pipe([]string{"cat"})
	if err != nil {
		t.Fatal(err)
	}
	var ae *AttachError
	if _, err := b.Attach(a); !errors.As(err, &ae) {
		t.Errorf("expected AttachError, got %v", err)
	}
}

func TestSettersOnStartedStage(t *testing.T) {
	s := mustRun(t, []string{"cat"})
	w, err := s.Stdin()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetStdout(Inherit()); !errors.Is(err, ErrStageStarted) {
		t.Errorf("SetStdout: expected ErrStageStarted, got %v", err)
	}
	if err := s.SetStderr(Piped()); !isStateError(err) {
		t.Errorf("SetStderr: expected StateError, got %v", err)
	}
	if err := s.SetStdin(Inherit()); !isStateError(err) {
		t.Errorf("SetStdin: expected StateError, got %v", err)
	}
	w.Close()
	if _, _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestSetStdoutOnIntermediateStage(t *testing.T) {
	a := mustRun(t, []string{"echo", "x"})
	if _, err := a.Pipe([]string{"cat"}); err != nil {
		t.Fatal(err)
	}
	var ae *AttachError
	if err := a.SetStdout(Inherit()); !errors.As(err, &ae) {
		t.Errorf("expected AttachError, got %v", err)
	}
}

func TestSetStderrDoesNotSpawn(t *testing.T) {
	s := mustRun(t, []string{"sh", "-c", "echo late >&2"})
	if err := s.SetStderr(Piped()); err != nil {
		t.Fatal(err)
	}
	if s.State() != NotStarted {
		t.Error("SetStderr must not spawn")
	}
	_, stderr, err := s.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(stderr) != "late\n" {
		t.Errorf("expected late, got %q", stderr)
	}
}

func TestPipeMixedSteps(t *testing.T) {
	a := mustRun(t, []string{"echo", "-n", "mixed"})
	tail, err := Pipe(a, Args{"cat"})
	if err != nil {
		t.Fatal(err)
	}
	if tail.Chain().Head() != a {
		t.Error("expected the given stage at the head")
	}
	out, _, err := tail.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "mixed" {
		t.Errorf("expected mixed, got %q", out)
	}
}

func TestPipeErrors(t *testing.T) {
	if _, err := Pipe(); !IsConfig(err) {
		t.Errorf("expected ConfigError for no steps, got %v", err)
	}
	_, err := Pipe(Args{"true"}, Args{})
	if !IsConfig(err) || !strings.Contains(err.Error(), "step 1") {
		t.Errorf("expected ConfigError naming step 1, got %v", err)
	}
	var nilStage *Stage
	if _, err := Pipe(Args{"true"}, nilStage); !IsConfig(err) {
		t.Errorf("expected ConfigError for a nil stage, got %v", err)
	}
}

func isStateError(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

func TestPipeFailureLeavesStagesUnlinked(t *testing.T) {
	x := mustRun(t, []string{"echo", "-n", "x"})
	started := mustRun(t, []string{"cat"})
	if err := started.Materialize(); err != nil {
		t.Fatal(err)
	}

	_, err := Pipe(x, Args{"cat"}, started)
	if !errors.Is(err, ErrStageStarted) {
		t.Fatalf("expected ErrStageStarted, got %v", err)
	}
	if n := x.Chain().Len(); n != 1 {
		t.Errorf("failed pipe left %d stages on x's chain", n)
	}
	if got := x.String(); got != "echo -n x" {
		t.Errorf("unexpected rendering %s", got)
	}
	if n := started.Chain().Len(); n != 1 {
		t.Errorf("failed pipe left %d stages on the running chain", n)
	}

	// x is still free to feed something else.
	tail, err := x.Pipe([]string{"cat"})
	if err != nil {
		t.Fatal(err)
	}
	out, _, err := tail.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "x" {
		t.Errorf("expected x, got %q", out)
	}
	if _, _, err := started.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestPipeRepeatedStageRejected(t *testing.T) {
	a := mustRun(t, []string{"echo", "a"})
	var ae *AttachError
	if _, err := Pipe(a, Args{"cat"}, a); !errors.As(err, &ae) {
		t.Fatalf("expected AttachError, got %v", err)
	}
	if n := a.Chain().Len(); n != 1 {
		t.Errorf("expected a to stay alone, got %d stages", n)
	}
}

func TestStdinStreamsMoreThanPipeBuffer(t *testing.T) {
	requireTools(t, "wc")
	tail, err := Pipe(Args{"cat"}, Args{"wc", "-c"})
	if err != nil {
		t.Fatal(err)
	}
	w, err := tail.Stdin()
	if err != nil {
		t.Fatal(err)
	}

	const size = 1 << 20
	done := make(chan error, 1)
	go func() {
		_, err := w.Write(make([]byte, size))
		w.Close()
		done <- err
	}()

	out, _, err := tail.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(string(out)); got != "1048576" {
		t.Errorf("expected %d bytes through the chain, got %s", size, got)
	}
}

func TestStdinAfterInputClosed(t *testing.T) {
	s := mustRun(t, []string{"cat"})
	if _, _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
	w, err := s.Stdin()
	if !errors.Is(err, ErrStdinClosed) || !isStateError(err) {
		t.Errorf("expected a StateError wrapping ErrStdinClosed, got %v", err)
	}
	if w != nil {
		t.Error("expected no writer once the input is closed")
	}
}

func TestPipeCreationFailureIsCached(t *testing.T) {
	up := mustRun(t, []string{"echo", "x"})
	down, err := up.Pipe([]string{"cat"})
	if err != nil {
		t.Fatal(err)
	}
	if err := up.Materialize(); err != nil {
		t.Fatal(err)
	}

	errNoPipe := errors.New("no pipes left")
	newPipe = func() (*os.File, *os.File, error) { return nil, nil, errNoPipe }
	err = down.Materialize()
	newPipe = os.Pipe
	if !errors.Is(err, errNoPipe) {
		t.Fatalf("expected the pipe failure, got %v", err)
	}

	if err := down.Materialize(); !errors.Is(err, errNoPipe) {
		t.Errorf("expected the cached failure, got %v", err)
	}
	if _, _, err := down.Wait(); !errors.Is(err, errNoPipe) {
		t.Errorf("expected Wait to report the launch failure, got %v", err)
	}
}
