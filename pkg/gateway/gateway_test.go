package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curaious/llmux/internal/config"
	"github.com/curaious/llmux/internal/perrors"
)

const testSchema = `{"type":"object","properties":{"message":{"type":"string"}},"required":["message"]}`

// fakeProvider scripts the raw text (or error) one Invoke returns. The
// optional gate channel blocks Invoke until closed, to hold permits open.
type fakeProvider struct {
	name   string
	output string
	err    error
	gate   chan struct{}

	mu          sync.Mutex
	invocations []Invocation
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Invoke(ctx context.Context, inv Invocation) (string, error) {
	f.mu.Lock()
	f.invocations = append(f.invocations, inv)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func (f *fakeProvider) invoked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invocations)
}

func singleProviderConf(concurrent int) []config.ProviderConfig {
	return []config.ProviderConfig{{
		Name:        "fake",
		Concurrent:  concurrent,
		TimeoutSecs: 5,
	}}
}

func request() *GenerateRequest {
	return &GenerateRequest{
		Provider: "fake",
		Prompt:   "say hi",
		Schema:   json.RawMessage(testSchema),
	}
}

func generateErrCode(t *testing.T, err error) perrors.ErrCode {
	t.Helper()
	var perr perrors.Err
	require.True(t, errors.As(err, &perr), "expected a perrors.Err, got %v", err)
	return perr.Code
}

func TestGenerateSuccess(t *testing.T) {
	fake := &fakeProvider{name: "fake", output: "Sure, here you go:\n{\"message\":\"hi\"}\nThanks!"}
	gw := New(singleProviderConf(2), fake)

	out, err := gw.Generate(context.Background(), request())
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"hi"}`, string(out))

	require.Equal(t, 1, fake.invoked())
	inv := fake.invocations[0]
	assert.Equal(t, "say hi", inv.Prompt)
	assert.Empty(t, inv.Model)
	assert.Equal(t, 5*time.Second, inv.Timeout)
}

func TestGenerateValidatesRequest(t *testing.T) {
	gw := New(singleProviderConf(2), &fakeProvider{name: "fake", output: "{}"})

	tests := []struct {
		name string
		req  *GenerateRequest
	}{
		{"missing provider", &GenerateRequest{Prompt: "hi", Schema: json.RawMessage(testSchema)}},
		{"empty prompt", &GenerateRequest{Provider: "fake", Schema: json.RawMessage(testSchema)}},
		{"missing schema", &GenerateRequest{Provider: "fake", Prompt: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.Generate(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, perrors.ErrCodeInvalidRequest, generateErrCode(t, err))
		})
	}
}

func TestGenerateUnknownProviderBeforeExecution(t *testing.T) {
	fake := &fakeProvider{name: "fake", output: "{}"}
	gw := New(singleProviderConf(2), fake)

	req := request()
	req.Provider = "mistral"

	_, err := gw.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeProviderNotFound, generateErrCode(t, err))
	assert.Zero(t, fake.invoked(), "resolution failure must never reach execution")
}

func TestGenerateUnknownModelDoesNotConsumeAdmission(t *testing.T) {
	fake := &fakeProvider{name: "fake", output: `{"message":"hi"}`}
	conf := singleProviderConf(1)
	conf[0].RPS = 1
	gw := New(conf, fake)

	req := request()
	req.Model = "no-such-model"
	_, err := gw.Generate(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeModelNotFound, generateErrCode(t, err))

	// The AUTO target's single token must still be available.
	_, err = gw.Generate(context.Background(), request())
	require.NoError(t, err)
}

func TestGenerateConcurrencyCeiling(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeProvider{name: "fake", output: `{"message":"hi"}`, gate: gate}
	gw := New(singleProviderConf(2), fake)

	results := make(chan error, 3)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Generate(context.Background(), request())
			results <- err
		}()
	}

	// Wait until both in-flight requests hold their permits.
	require.Eventually(t, func() bool { return fake.invoked() == 2 }, time.Second, time.Millisecond)

	_, err := gw.Generate(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeRateLimited, generateErrCode(t, err))

	close(gate)
	wg.Wait()
	close(results)
	for err := range results {
		require.NoError(t, err)
	}

	// Both permits must be back.
	_, err = gw.Generate(context.Background(), request())
	require.NoError(t, err)
}

func TestGenerateReleasesPermitOnExecutionFailure(t *testing.T) {
	fake := &fakeProvider{name: "fake", err: perrors.NewErrProviderExecution("fake exited with status 1", errors.New("exit status 1"), "boom")}
	gw := New(singleProviderConf(1), fake)

	for i := 0; i < 3; i++ {
		_, err := gw.Generate(context.Background(), request())
		require.Error(t, err)
		assert.Equal(t, perrors.ErrCodeProviderExecution, generateErrCode(t, err))
	}
	assert.Equal(t, 3, fake.invoked(), "failed executions must not leak the permit")
}

func TestGenerateReleasesPermitOnTimeout(t *testing.T) {
	fake := &fakeProvider{name: "fake", err: perrors.NewErrTimeout("fake", time.Second)}
	gw := New(singleProviderConf(1), fake)

	_, err := gw.Generate(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeTimeout, generateErrCode(t, err))

	// The permit released by the timed-out call must be grantable again.
	fake.err = nil
	fake.output = `{"message":"hi"}`
	_, err = gw.Generate(context.Background(), request())
	require.NoError(t, err)
}

func TestGenerateReleasesPermitOnCancellation(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeProvider{name: "fake", output: `{"message":"hi"}`, gate: gate}
	gw := New(singleProviderConf(1), fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := gw.Generate(ctx, request())
		done <- err
	}()

	require.Eventually(t, func() bool { return fake.invoked() == 1 }, time.Second, time.Millisecond)
	cancel()
	err := <-done
	require.Error(t, err)

	close(gate)
	fake.gate = nil
	_, err = gw.Generate(context.Background(), request())
	require.NoError(t, err, "an abandoned request must not hold its permit")
}

func TestGenerateOutputParseError(t *testing.T) {
	fake := &fakeProvider{name: "fake", output: "no json here"}
	gw := New(singleProviderConf(1), fake)

	_, err := gw.Generate(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeOutputParse, generateErrCode(t, err))
}

func TestGenerateSchemaValidationFailure(t *testing.T) {
	fake := &fakeProvider{name: "fake", output: `{"other":"field"}`}
	gw := New(singleProviderConf(1), fake)

	_, err := gw.Generate(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeOutputParse, generateErrCode(t, err))
}

func TestGenerateClassifiesUnknownErrors(t *testing.T) {
	fake := &fakeProvider{name: "fake", err: errors.New("something odd")}
	gw := New(singleProviderConf(1), fake)

	_, err := gw.Generate(context.Background(), request())
	require.Error(t, err)
	assert.Equal(t, perrors.ErrCodeInternalServer, generateErrCode(t, err))
}

func TestGenerateModelTargetPassesModelToProvider(t *testing.T) {
	fake := &fakeProvider{name: "fake", output: `{"message":"hi"}`}
	conf := singleProviderConf(2)
	conf[0].Models = []config.ModelConfig{{Name: "small", Concurrent: 1, TimeoutSecs: 7}}
	gw := New(conf, fake)

	req := request()
	req.Model = "small"
	_, err := gw.Generate(context.Background(), req)
	require.NoError(t, err)

	inv := fake.invocations[0]
	assert.Equal(t, "small", inv.Model)
	assert.Equal(t, 7*time.Second, inv.Timeout)
}
