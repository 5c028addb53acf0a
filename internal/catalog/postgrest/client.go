// Package postgrest reads catalog tables through a Supabase PostgREST endpoint.
package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/datallboy/optolib/internal/catalog"
	"github.com/datallboy/optolib/internal/domain"
)

type Client struct {
	BaseURL string
	AnonKey string
	http    *http.Client
}

func New(baseURL, anonKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		AnonKey: anonKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Name() string { return "postgrest" }

func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var rows []categoryRow
	if err := c.selectAll(ctx, catalog.TableCategories, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.Category, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

func (c *Client) Books(ctx context.Context) ([]domain.Book, error) {
	var rows []bookRow
	if err := c.selectAll(ctx, catalog.TableBooks, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.Book, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

func (c *Client) Featured(ctx context.Context) ([]domain.FeaturedEntry, error) {
	var rows []featuredRow
	if err := c.selectAll(ctx, catalog.TableFeatured, &rows); err != nil {
		return nil, err
	}

	out := make([]domain.FeaturedEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToDomain())
	}
	return out, nil
}

// selectAll issues GET /rest/v1/<table>?select=* and decodes the JSON array into dst.
func (c *Client) selectAll(ctx context.Context, table string, dst any) error {
	u := fmt.Sprintf("%s/rest/v1/%s?select=%s", c.BaseURL, url.PathEscape(table), url.QueryEscape("*"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.AnonKey)
	req.Header.Set("Authorization", "Bearer "+c.AnonKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", table, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", table, err)
	}
	return nil
}
