package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/app"
	_ "github.com/odyssey-erp/backoffice/internal/testing/guard"
)

func TestRunRejectsUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), &app.Config{}, nil, []string{"frobnicate"}, &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown command "frobnicate"`)
	require.Empty(t, out.String())
}

func TestRunRequiresSubcommandArguments(t *testing.T) {
	cases := [][]string{
		{"migrate"},
		{"migrate", "up", "extra"},
		{"jobs"},
	}
	for _, args := range cases {
		err := run(context.Background(), &app.Config{}, nil, args, &bytes.Buffer{})
		require.EqualError(t, err, usage, "args %v", args)
	}
}

func TestMainReturnsInTestMode(t *testing.T) {
	require.True(t, app.InTestMode())
	main()
}
