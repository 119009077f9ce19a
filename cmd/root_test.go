package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communitas-hq/partner-research/internal/model"
)

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"research", "status", "context", "intro", "export", "publish", "purge", "serve"} {
		assert.True(t, names[want], "command %s not registered", want)
	}
}

func TestParseCategory(t *testing.T) {
	cat, err := parseCategory("investor")
	require.NoError(t, err)
	assert.Equal(t, model.CategoryInvestor, cat)

	_, err = parseCategory("warlord")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown partner category")
}

func TestSourcePriority(t *testing.T) {
	got, err := sourcePriority(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = sourcePriority([]string{"encyclopedia-person", "profile-scrape"})
	require.NoError(t, err)
	assert.Equal(t, []model.SourceName{model.SourceEncycPerson, model.SourceProfileScrape}, got)

	_, err = sourcePriority([]string{"carrier-pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown research source")
}
