package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/storage"
)

func TestRunPrintsAndRemovesRecord(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fileStore, err := storage.NewFile(dir)
	require.NoError(t, err)
	sealed, err := storage.NewEncrypted(fileStore, "dump-secret", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sealed.Save(ctx, "sale-store:tab-7", []byte(`{"cartItems":[{"products":[{"product_id":"p1","quantity":2}]}]}`)))

	opts := options{Backend: storage.BackendFile, Dir: dir, Variant: "sale", SessionID: "tab-7", Secret: "dump-secret", Remove: true}
	var out bytes.Buffer
	code, err := run(ctx, &out, opts)
	require.NoError(t, err)
	require.Zero(t, code)
	require.Contains(t, out.String(), `"product_id": "p1"`)

	code, err = run(ctx, &out, opts)
	require.ErrorIs(t, err, errNoRecord)
	require.Equal(t, 1, code)
}

func TestRunWrongSecretReadsAsEmpty(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	fileStore, err := storage.NewFile(dir)
	require.NoError(t, err)
	sealed, err := storage.NewEncrypted(fileStore, "right", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, sealed.Save(ctx, "cart-store", []byte(`{"cartItems":[]}`)))

	code, err := run(ctx, &bytes.Buffer{}, options{Backend: storage.BackendFile, Dir: dir, Key: "cart-store", Secret: "wrong"})
	require.ErrorIs(t, err, errNoRecord)
	require.Equal(t, 1, code)
}
