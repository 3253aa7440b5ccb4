//go:build !linux

package fstracer

import "fmt"

type noopBackend struct{}

func newBackend() backend { return &noopBackend{} }

func (noopBackend) start(m *Manager) error { return fmt.Errorf("fstracer: fanotify unsupported on this platform") }
func (noopBackend) stop()                  {}
