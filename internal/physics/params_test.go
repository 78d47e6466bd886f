package physics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/rigidsim/internal/config"
	"github.com/san-kum/rigidsim/internal/logging"
	"github.com/san-kum/rigidsim/internal/physics"
)

func newFakeEngine(t *testing.T, rec *logging.Recorder) *physics.Engine {
	t.Helper()
	fake.reset()
	eng, err := physics.New(config.DefaultConfig(), physics.WithBackend(fakeName), physics.WithLogger(rec))
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return eng
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxStepSize = 0
	_, err := physics.New(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = physics.New(nil, physics.WithBackend("nonexistent"))
	assert.Error(t, err)
}

func TestTypeParamIsDeprecatedAlias(t *testing.T) {
	rec := logging.NewRecorder()
	eng := newFakeEngine(t, rec)
	ctx := context.Background()

	v, err := eng.GetParam(ctx, physics.ParamType)
	require.NoError(t, err)
	assert.Equal(t, "fake solver", v)
	assert.Equal(t, 1, rec.Count("WARN"))

	require.NoError(t, eng.SetParam(ctx, physics.ParamType, "fake solver"))
	assert.ErrorIs(t, eng.SetParam(ctx, physics.ParamType, "other"), physics.ErrUnsupportedParam)
}

func TestGetParam(t *testing.T) {
	eng := newFakeEngine(t, logging.NewRecorder())
	ctx := context.Background()

	tests := []struct {
		key  string
		want any
	}{
		{physics.ParamSolverType, "fake solver"},
		{physics.ParamIntegratorType, "semi_explicit_euler"},
		{physics.ParamAccuracy, config.DefaultAccuracy},
		{physics.ParamMaxTransientVelocity, config.DefaultTransitionVelocity},
		{physics.ParamMaxStepSize, config.DefaultMaxStepSize},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v, err := eng.GetParam(ctx, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	_, err := eng.GetParam(ctx, "cfm")
	assert.ErrorIs(t, err, physics.ErrUnknownParam)
}

func TestSetParamBeforeModelsRun(t *testing.T) {
	eng := newFakeEngine(t, logging.NewRecorder())
	ctx := context.Background()

	require.NoError(t, eng.SetParam(ctx, physics.ParamIntegratorType, "rk4"))
	require.NoError(t, eng.SetParam(ctx, physics.ParamAccuracy, 1e-5))
	require.NoError(t, eng.SetParam(ctx, physics.ParamMaxTransientVelocity, float32(0.5)))
	require.NoError(t, eng.SetParam(ctx, physics.ParamMaxStepSize, 0.004))

	for key, want := range map[string]any{
		physics.ParamIntegratorType:       "rk4",
		physics.ParamAccuracy:             1e-5,
		physics.ParamMaxTransientVelocity: 0.5,
		physics.ParamMaxStepSize:          0.004,
	} {
		v, err := eng.GetParam(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, v, key)
	}
	assert.Equal(t, "rk4", eng.Config().Integrator)
}

func TestSetParamRejects(t *testing.T) {
	rec := logging.NewRecorder()
	eng := newFakeEngine(t, rec)
	ctx := context.Background()

	tests := []struct {
		key   string
		value any
		want  error
	}{
		{physics.ParamAccuracy, "tight", physics.ErrParamType},
		{physics.ParamAccuracy, -1.0, physics.ErrParamRange},
		{physics.ParamMaxStepSize, 1e-12, physics.ErrParamRange},
		{physics.ParamIntegratorType, 4, physics.ErrParamType},
		{physics.ParamSolverType, "dantzig", physics.ErrUnsupportedParam},
		{"cfm", 0.1, physics.ErrUnknownParam},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, eng.SetParam(ctx, tt.key, tt.value), tt.want, tt.key)
	}
	assert.Equal(t, len(tests), rec.Count("WARN"))
	assert.Equal(t, config.DefaultAccuracy, eng.Config().Accuracy)
}

func TestSolverParamsFreezeOnceRunning(t *testing.T) {
	eng := newFakeEngine(t, logging.NewRecorder())
	ctx := context.Background()
	require.NoError(t, eng.AddModel(ctx, ball("ball", 0, 0, 1)))

	for _, key := range []string{physics.ParamAccuracy, physics.ParamMaxTransientVelocity, physics.ParamMaxStepSize} {
		assert.ErrorIs(t, eng.SetParam(ctx, key, 0.1), physics.ErrUnsupportedParam, key)
	}
	assert.ErrorIs(t, eng.SetParam(ctx, physics.ParamIntegratorType, "rk4"), physics.ErrUnsupportedParam)
}
