package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gorm.io/datatypes"
)

func TestContactAddTag(t *testing.T) {
	c := &Contact{}

	assert.True(t, c.AddTag("vip"))
	assert.True(t, c.AddTag("lead"))
	assert.Equal(t, []string{"vip", "lead"}, c.TagList())

	// Re-adding is a no-op and reports false so callers can skip the write.
	assert.False(t, c.AddTag("vip"))
	assert.Equal(t, []string{"vip", "lead"}, c.TagList())
}

func TestContactTagListMalformed(t *testing.T) {
	c := &Contact{Tags: datatypes.JSON(`{"not":"a list"}`)}
	assert.Nil(t, c.TagList())

	c = &Contact{}
	assert.Nil(t, c.TagList())
}
