package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	require.Equal(t, "sharepoold", root.Use)

	for _, path := range [][]string{
		{"query", "pool"},
		{"start"},
		{"init"},
		{"version"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		require.NotNil(t, cmd)
	}
}

func TestNoPoolTxCommands(t *testing.T) {
	tx, _, err := NewRootCmd().Find([]string{"tx"})
	require.NoError(t, err)
	for _, c := range tx.Commands() {
		require.NotEqual(t, "pool", c.Name())
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := VersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)
	require.Contains(t, out.String(), "SharePool "+Version)
}

func TestAppConfigTemplate(t *testing.T) {
	tpl, _ := initAppConfig()
	require.Contains(t, tpl, "[pool]")
	require.Contains(t, tpl, "settlement-denom")
}
