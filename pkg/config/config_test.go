package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theapemachine/recall/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.5, cfg.Activation.DecayFactor)
	assert.Equal(t, 0.1, cfg.Activation.ActivationThreshold)
	assert.Equal(t, 256, cfg.Database.VectorDim)
}

func TestValidateRejectsNonPositiveDimension(t *testing.T) {
	cfg := Default()
	cfg.Database.VectorDim = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidConfig))
}

func TestValidateRequiresRemoteURIs(t *testing.T) {
	cfg := Default()
	cfg.Database.GraphBackend = BackendNeo4j

	assert.Error(t, cfg.Validate())

	cfg.Database.GraphURI = "bolt://localhost:7687"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yml")

	yml := `
activation:
  decay_factor: 0.7
  max_depth: 4
database:
  vector_dim: 64
`
	require.NoError(t, v.ReadConfig(strings.NewReader(yml)))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Activation.DecayFactor)
	assert.Equal(t, 4, cfg.Activation.MaxDepth)
	assert.Equal(t, 64, cfg.Database.VectorDim)
	assert.Equal(t, 0.1, cfg.Activation.ActivationThreshold)
	assert.Equal(t, 5, cfg.Retrieval.ContextBudgetItems)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RECALL_ACTIVATION_CACHE_SIZE", "42")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Activation.CacheSize)
}
