package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPromoteValidatesFlags(t *testing.T) {
	_, err := run("promote")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--email is required")

	_, err = run("promote", "--email", "a@b.co", "--type", "vendor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--type must be one of: buyer, seller, admin")
}

func TestSubcommandsRegistered(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["migrate"])
	assert.True(t, names["promote"])
	assert.True(t, names["purge-sessions"])
}

func TestValidUserType(t *testing.T) {
	assert.True(t, validUserType("seller"))
	assert.False(t, validUserType("fan"))
}
