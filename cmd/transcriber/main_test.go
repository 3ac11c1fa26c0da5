package main

import (
	"testing"
	"time"

	"github.com/airenas/recscribe/internal/pkg/asr/dashscope"
	"github.com/airenas/recscribe/internal/pkg/asr/mock"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_defaultV(t *testing.T) {
	assert.Equal(t, "vd", defaultV("", "vd"))
	assert.Equal(t, "aaa", defaultV("aaa", "vd"))
	assert.Equal(t, 1, defaultV(0, 1))
	assert.Equal(t, 10, defaultV(10, 1))
	assert.Equal(t, time.Minute, defaultV(time.Duration(0), time.Minute))
	assert.Equal(t, time.Minute*5, defaultV(time.Minute*5, time.Minute))
}

func Test_newProvider(t *testing.T) {
	cfg := viper.New()
	cfg.Set("asr.provider", "mock")
	cfg.Set("asr.mock.pollsUntilDone", 4)

	got, err := newProvider(cfg)

	require.Nil(t, err)
	assert.IsType(t, &mock.Provider{}, got)
}

func Test_newProvider_Dashscope(t *testing.T) {
	cfg := viper.New()
	cfg.Set("asr.dashscope.key", "k")

	got, err := newProvider(cfg)

	require.Nil(t, err)
	assert.IsType(t, &dashscope.Client{}, got)
}

func Test_newProvider_Fails(t *testing.T) {
	cfg := viper.New()
	cfg.Set("asr.provider", "olia")
	_, err := newProvider(cfg)
	assert.NotNil(t, err)

	cfg = viper.New()
	_, err = newProvider(cfg)
	assert.NotNil(t, err)
}
