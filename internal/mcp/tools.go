// Package mcp exposes the catalog registry over the Model Context Protocol.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/catalogd/internal/domain/agent"
	"github.com/felixgeelhaar/catalogd/internal/domain/catalog"
)

// Reader is the read side of the registry the tools need.
type Reader interface {
	Get(id int64) (catalog.Local, bool)
	Internal() []catalog.Internal
	Installed() []catalog.Installed
	InstalledByPkg(pkgName string) (catalog.Installed, bool)
	Remote() []catalog.Remote
}

// Refresher triggers a remote sync.
type Refresher interface {
	Refresh(ctx context.Context, force bool) ([]catalog.Remote, error)
}

// SyncStatus reports the state of the background sync.
type SyncStatus interface {
	Status() agent.Status
}

// VersionInfo holds build information reported by catalog_status.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// ListInput is the input for the catalog_list tool.
type ListInput struct {
	Kind        string `json:"kind,omitempty" jsonschema:"description=Which catalogs to list: all, internal, installed, remote (default: all)"`
	Lang        string `json:"lang,omitempty" jsonschema:"description=Only catalogs in this language (e.g. en, pt-BR)"`
	UpdatesOnly bool   `json:"updates_only,omitempty" jsonschema:"description=Only installed catalogs with an update available"`
}

// ListOutput is the output for the catalog_list tool.
type ListOutput struct {
	Internal  []CatalogInfo `json:"internal,omitempty"`
	Installed []CatalogInfo `json:"installed,omitempty"`
	Remote    []CatalogInfo `json:"remote,omitempty"`
}

// CatalogInfo describes one catalog.
type CatalogInfo struct {
	Kind        string `json:"kind"`
	ID          int64  `json:"id,omitempty"`
	Name        string `json:"name"`
	Lang        string `json:"lang,omitempty"`
	LangName    string `json:"lang_name,omitempty"`
	Description string `json:"description,omitempty"`
	PkgName     string `json:"pkg_name,omitempty"`
	VersionName string `json:"version_name,omitempty"`
	VersionCode int64  `json:"version_code,omitempty"`
	Nsfw        bool   `json:"nsfw,omitempty"`
	HasUpdate   bool   `json:"has_update,omitempty"`
}

// GetInput is the input for the catalog_get tool.
type GetInput struct {
	ID      int64  `json:"id,omitempty" jsonschema:"description=Source id of an internal or installed catalog"`
	PkgName string `json:"pkg_name,omitempty" jsonschema:"description=Package name of an installed catalog"`
}

// RefreshInput is the input for the catalog_refresh tool.
type RefreshInput struct {
	Force bool `json:"force,omitempty" jsonschema:"description=Fetch even if the manifest was refreshed recently"`
}

// RefreshOutput is the output for the catalog_refresh tool.
type RefreshOutput struct {
	Count   int `json:"count"`
	Updates int `json:"updates"`
}

// StatusInput is the input for the catalog_status tool.
type StatusInput struct{}

// StatusOutput is the output for the catalog_status tool.
type StatusOutput struct {
	VersionInfo
	Internal  int       `json:"internal"`
	Installed int       `json:"installed"`
	Remote    int       `json:"remote"`
	Updates   int       `json:"updates"`
	CheckedAt time.Time `json:"checked_at"`
	Sync      *SyncInfo `json:"sync,omitempty"`
}

// SyncInfo describes the background sync.
type SyncInfo struct {
	State      string    `json:"state"`
	Health     string    `json:"health"`
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`
	NextSyncAt time.Time `json:"next_sync_at,omitempty"`
	SyncCount  int       `json:"sync_count"`
	ErrorCount int       `json:"error_count"`
}

// RegisterAll registers all MCP tools with the server. sync may be nil when
// no background sync runs.
func RegisterAll(srv *mcp.Server, reader Reader, refresher Refresher, sync SyncStatus, versionInfo VersionInfo) {
	registerListTool(srv, reader)
	registerGetTool(srv, reader)
	registerRefreshTool(srv, reader, refresher)
	registerStatusTool(srv, reader, sync, versionInfo)
}

func registerListTool(srv *mcp.Server, reader Reader) {
	srv.Tool("catalog_list").
		Description("List internal, installed and remote catalogs. Installed catalogs report whether the remote manifest has a newer version.").
		ReadOnly().
		Handler(func(_ context.Context, in ListInput) (*ListOutput, error) {
			kind := strings.ToLower(strings.TrimSpace(in.Kind))
			if kind == "" {
				kind = "all"
			}
			if !validKind(kind) {
				return nil, fmt.Errorf("invalid kind %q: must be all, internal, installed or remote", in.Kind)
			}
			lang := ""
			if in.Lang != "" {
				lang = catalog.NormalizeLang(in.Lang)
			}

			output := &ListOutput{}
			if kind == "all" || kind == "internal" {
				for _, c := range reader.Internal() {
					if lang == "" || c.Source.Lang() == lang {
						output.Internal = append(output.Internal, internalInfo(c))
					}
				}
			}
			if kind == "all" || kind == "installed" {
				for _, c := range reader.Installed() {
					if in.UpdatesOnly && !c.HasUpdate {
						continue
					}
					if info := installedInfo(c); lang == "" || info.Lang == lang {
						output.Installed = append(output.Installed, info)
					}
				}
			}
			if kind == "all" || kind == "remote" {
				for _, r := range reader.Remote() {
					if lang == "" || r.Lang == lang {
						output.Remote = append(output.Remote, remoteInfo(r))
					}
				}
			}
			return output, nil
		})
}

func registerGetTool(srv *mcp.Server, reader Reader) {
	srv.Tool("catalog_get").
		Description("Get one local catalog by source id or package name.").
		ReadOnly().
		Handler(func(_ context.Context, in GetInput) (*CatalogInfo, error) {
			if in.PkgName != "" {
				c, ok := reader.InstalledByPkg(in.PkgName)
				if !ok {
					return nil, fmt.Errorf("no installed catalog for package %q", in.PkgName)
				}
				info := installedInfo(c)
				return &info, nil
			}
			if in.ID == 0 {
				return nil, fmt.Errorf("id or pkg_name is required")
			}

			local, ok := reader.Get(in.ID)
			if !ok {
				return nil, fmt.Errorf("no catalog with id %d", in.ID)
			}
			var info CatalogInfo
			switch c := local.(type) {
			case catalog.Installed:
				info = installedInfo(c)
			case catalog.Internal:
				info = internalInfo(c)
			default:
				return nil, fmt.Errorf("unsupported catalog type %T", local)
			}
			return &info, nil
		})
}

func registerRefreshTool(srv *mcp.Server, reader Reader, refresher Refresher) {
	srv.Tool("catalog_refresh").
		Description("Refresh the remote catalog manifest. Refreshes within a few minutes of the last one are skipped unless force is set.").
		Handler(func(ctx context.Context, in RefreshInput) (*RefreshOutput, error) {
			list, err := refresher.Refresh(ctx, in.Force)
			if err != nil {
				return nil, err
			}
			return &RefreshOutput{Count: len(list), Updates: countUpdates(reader.Installed())}, nil
		})
}

func registerStatusTool(srv *mcp.Server, reader Reader, sync SyncStatus, versionInfo VersionInfo) {
	srv.Tool("catalog_status").
		Description("Get version information, catalog counts and the state of the background sync.").
		ReadOnly().
		Handler(func(_ context.Context, _ StatusInput) (*StatusOutput, error) {
			installed := reader.Installed()
			output := &StatusOutput{
				VersionInfo: versionInfo,
				Internal:    len(reader.Internal()),
				Installed:   len(installed),
				Remote:      len(reader.Remote()),
				Updates:     countUpdates(installed),
				CheckedAt:   time.Now(),
			}
			if sync != nil {
				st := sync.Status()
				output.Sync = &SyncInfo{
					State:      string(st.State),
					Health:     st.Health.String(),
					LastSyncAt: st.LastSyncAt,
					NextSyncAt: st.NextSyncAt,
					SyncCount:  st.SyncCount,
					ErrorCount: st.ErrorCount,
				}
			}
			return output, nil
		})
}

func validKind(kind string) bool {
	switch kind {
	case "all", "internal", "installed", "remote":
		return true
	}
	return false
}

func countUpdates(list []catalog.Installed) int {
	n := 0
	for _, c := range list {
		if c.HasUpdate {
			n++
		}
	}
	return n
}

func internalInfo(c catalog.Internal) CatalogInfo {
	return CatalogInfo{
		Kind:        "internal",
		ID:          c.Source.ID(),
		Name:        c.CatalogName(),
		Lang:        c.Source.Lang(),
		LangName:    catalog.LangName(c.Source.Lang()),
		Description: c.Description,
	}
}

func installedInfo(c catalog.Installed) CatalogInfo {
	info := CatalogInfo{
		Kind:        "installed",
		ID:          c.SourceID(),
		Name:        c.Name,
		Description: c.Description,
		PkgName:     c.PkgName,
		VersionName: c.VersionName,
		VersionCode: c.VersionCode,
		Nsfw:        c.Nsfw,
		HasUpdate:   c.HasUpdate,
	}
	if c.Source != nil {
		info.Lang = c.Source.Lang()
		info.LangName = catalog.LangName(info.Lang)
	}
	return info
}

func remoteInfo(r catalog.Remote) CatalogInfo {
	return CatalogInfo{
		Kind:        "remote",
		Name:        r.Name,
		Lang:        r.Lang,
		LangName:    catalog.LangName(r.Lang),
		Description: r.Description,
		PkgName:     r.PkgName,
		VersionName: r.VersionName,
		VersionCode: r.VersionCode,
		Nsfw:        r.Nsfw,
	}
}
