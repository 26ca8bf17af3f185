package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// maxPages bounds device paging for controllers that ignore the offset.
const maxPages = 50

type envelope struct {
	Meta struct {
		RC  string `json:"rc"`
		Msg string `json:"msg"`
	} `json:"meta"`
	Data       []map[string]any `json:"data"`
	TotalCount *int             `json:"totalCount,omitempty"`
}

// ListDevices returns the full device inventory of site, following pages.
// Devices are kept as raw objects since their shape differs across firmware.
// Older controllers ignore limit and offset and answer every page with the
// whole inventory; paging stops as soon as that is detected.
func (c *Client) ListDevices(ctx context.Context, site string) ([]map[string]any, error) {
	var all []map[string]any
	seen := map[string]bool{}
	offset := 0
	for page := 0; page < maxPages; page++ {
		path := fmt.Sprintf("/api/s/%s/stat/device?limit=%d&offset=%d", url.PathEscape(site), c.cfg.PageSize, offset)
		data, err := c.Request(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("list devices: %w", err)
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode devices: %w", err)
		}
		if env.Meta.RC == "error" {
			return nil, fmt.Errorf("list devices: controller error: %s", env.Meta.Msg)
		}
		if len(env.Data) > 0 {
			if k := deviceKey(env.Data[0]); k != "" && seen[k] {
				c.log.Debug("controller ignores device paging", zap.Int("offset", offset))
				break
			}
		}
		for _, d := range env.Data {
			if k := deviceKey(d); k != "" {
				seen[k] = true
			}
		}
		all = append(all, env.Data...)
		offset += len(env.Data)
		if len(env.Data) != c.cfg.PageSize {
			break
		}
		if env.TotalCount != nil && offset >= *env.TotalCount {
			break
		}
	}
	return all, nil
}

// deviceKey identifies a device across pages, or "" when it carries no id.
func deviceKey(d map[string]any) string {
	for _, k := range []string{"_id", "mac"} {
		if v, ok := d[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ListWanGroups returns the WAN topology of site. The endpoint answers with
// either a bare array or an enveloped one depending on version.
func (c *Client) ListWanGroups(ctx context.Context, site string) ([]map[string]any, error) {
	path := fmt.Sprintf("/v2/api/site/%s/wan/enriched-configuration", url.PathEscape(site))
	data, err := c.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("list wan groups: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var out []map[string]any
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode wan groups: %w", err)
		}
		return out, nil
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decode wan groups: %w", err)
	}
	return env.Data, nil
}
