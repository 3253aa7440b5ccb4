package service

import (
	"encoding/json"
	"fmt"

	"github.com/X3n0m0rph59/precached/internal/config"
	"github.com/X3n0m0rph59/precached/internal/control"
	"github.com/X3n0m0rph59/precached/internal/eventbus"
	"github.com/X3n0m0rph59/precached/internal/tracestore"
)

// globalStatistics is RequestGlobalStatistics's response payload.
type globalStatistics struct {
	TrackedProcesses int   `json:"tracked_processes"`
	CatalogEntries   int   `json:"catalog_entries"`
	HistogramEntries int   `json:"histogram_entries"`
	CatalogSizeBytes int64 `json:"catalog_size_bytes"`
}

// cachedFile is one entry of RequestCachedFiles's response payload.
type cachedFile struct {
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	SizeBytes int64  `json:"size_bytes"`
	HitCount  int64  `json:"hit_count"`
}

// blacklistRequest is Blacklist's request payload.
type blacklistRequest struct {
	Path   string `json:"path"`
	Enable bool   `json:"enable"`
	DryRun bool   `json:"dry_run"`
}

// blacklistResponse is Blacklist's response payload.
type blacklistResponse struct {
	Matched bool `json:"matched"`
}

func (d *Daemon) registerControlHandlers() {
	d.control.Handle(control.TypeRequestGlobalStatistics, d.handleRequestGlobalStatistics)
	d.control.Handle(control.TypeRequestCachedFiles, d.handleRequestCachedFiles)
	d.control.Handle(control.TypeDoHousekeeping, d.handleDoHousekeeping)
	d.control.Handle(control.TypeReload, d.handleReload)
	d.control.Handle(control.TypeBlacklist, d.handleBlacklist)
}

func (d *Daemon) handleRequestGlobalStatistics(json.RawMessage) (control.MessageType, any, error) {
	rows, err := d.store.List(tracestore.Filter{})
	if err != nil {
		return "", nil, err
	}

	var totalSize int64
	for _, r := range rows {
		totalSize += r.SizeBytes
	}

	stats := globalStatistics{
		CatalogEntries:   len(rows),
		HistogramEntries: len(d.histogram.Ranked()),
		CatalogSizeBytes: totalSize,
	}
	return control.TypeSendGlobalStatistics, stats, nil
}

func (d *Daemon) handleRequestCachedFiles(json.RawMessage) (control.MessageType, any, error) {
	rows, err := d.store.List(tracestore.Filter{})
	if err != nil {
		return "", nil, err
	}

	files := make([]cachedFile, 0, len(rows))
	for _, r := range rows {
		files = append(files, cachedFile{Path: r.Exe, Hash: r.Hash, SizeBytes: r.SizeBytes, HitCount: r.HitCount})
	}
	return control.TypeSendCachedFiles, files, nil
}

func (d *Daemon) handleDoHousekeeping(json.RawMessage) (control.MessageType, any, error) {
	d.bus.Dispatch([]eventbus.InternalEvent{{Kind: eventbus.EventDoHousekeeping}})
	return control.TypeDoHousekeeping, struct{}{}, nil
}

func (d *Daemon) handleBlacklist(raw json.RawMessage) (control.MessageType, any, error) {
	var req blacklistRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return "", nil, fmt.Errorf("decoding blacklist request: %w", err)
	}
	matched, err := d.store.Blacklist(req.Path, req.Enable, req.DryRun)
	if err != nil {
		return "", nil, err
	}
	return control.TypeBlacklisted, blacklistResponse{Matched: matched}, nil
}

func (d *Daemon) handleReload(json.RawMessage) (control.MessageType, any, error) {
	if err := d.Reload(); err != nil {
		return "", nil, err
	}
	return control.TypeReload, struct{}{}, nil
}

// Reload re-reads the config file this Daemon was started from and
// applies the parts that can change at runtime: the static allow/deny
// lists. Used by both the control socket's Reload command and SIGHUP.
func (d *Daemon) Reload() error {
	cfg, err := config.Load(d.cfgPath)
	if err != nil {
		return err
	}
	d.lists.Reload(cfg.Whitelist, cfg.Blacklist, cfg.ProgramWhitelist, cfg.ProgramBlacklist)
	d.bus.Dispatch([]eventbus.InternalEvent{{Kind: eventbus.EventConfigurationReloaded}})
	return nil
}
