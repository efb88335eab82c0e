package main

import (
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckEngineRejectsEmptyPath(t *testing.T) {
	err := checkEngine("")
	require.Error(t, err)
}

func TestCheckEngineRejectsMissingFile(t *testing.T) {
	err := checkEngine(filepath.Join(t.TempDir(), "does-not-exist"))
	require.Error(t, err)
}

func TestCheckEngineRejectsDirectory(t *testing.T) {
	err := checkEngine(t.TempDir())
	require.Error(t, err)
}

func TestCheckEngineAcceptsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine-bin")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, checkEngine(path))
}

func TestCheckPortAcceptsFreeAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	require.NoError(t, checkPort(addr, false))
}

func TestCheckPortRejectsOccupiedAddressWithoutForce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	err = checkPort(ln.Addr().String(), false)
	require.Error(t, err)
}

func TestCheckPortIgnoresOccupiedAddressWithForce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	require.NoError(t, checkPort(ln.Addr().String(), true))
}

func TestMetricsHandlerNilWhenAddrEmpty(t *testing.T) {
	require.Nil(t, metricsHandler(""))
}

func TestMetricsHandlerNonNilWhenAddrSet(t *testing.T) {
	require.NotNil(t, metricsHandler(":9091"))
}

func TestServerDirReturnsAbsolutePath(t *testing.T) {
	dir := serverDir()
	require.True(t, filepath.IsAbs(dir))
}
