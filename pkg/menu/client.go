package menu

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Details is the restaurant profile used to brand the call.
type Details struct {
	RefID   string `json:"refId"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Client talks to the unified restaurant service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: httpClient,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

// RestaurantDetails fetches the restaurant profile.
func (c *Client) RestaurantDetails(ctx context.Context, restaurantRefID string) (Details, error) {
	var details Details
	if err := c.getJSON(ctx, restaurantRefID, "details", &details); err != nil {
		return Details{}, err
	}
	return details, nil
}

type composedMenuItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	DietType    string  `json:"dietType"`
	RefID       string  `json:"refId"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Published   bool    `json:"published"`
	IsDeleted   bool    `json:"isDeleted"`
}

type composedCategory struct {
	Name            string             `json:"name"`
	Published       bool               `json:"published"`
	MarkedForDelete bool               `json:"markedForDelete"`
	MenuItems       []composedMenuItem `json:"menuItems"`
}

// MenuCatalog fetches the composed menu and keeps only published
// categories and items. Unpublished or deleted entries never reach the
// agent.
func (c *Client) MenuCatalog(ctx context.Context, restaurantRefID string) (*Catalog, error) {
	var composed []composedCategory
	if err := c.getJSON(ctx, restaurantRefID, "ComposedMenuItems", &composed); err != nil {
		return nil, err
	}

	catalog := &Catalog{}
	for _, cat := range composed {
		if !cat.Published || cat.MarkedForDelete {
			continue
		}
		out := Category{Name: cat.Name}
		for _, item := range cat.MenuItems {
			if !item.Published || item.IsDeleted {
				continue
			}
			out.Items = append(out.Items, Item{
				RefID:       item.RefID,
				Name:        item.Name,
				Description: item.Description,
				DietType:    item.DietType,
				Price:       item.Price,
				Currency:    item.Currency,
				Category:    cat.Name,
			})
		}
		catalog.Categories = append(catalog.Categories, out)
	}
	return catalog, nil
}

func (c *Client) getJSON(ctx context.Context, restaurantRefID, resource string, out any) error {
	if !c.Configured() {
		return fmt.Errorf("restaurant service is not configured")
	}
	restaurantRefID = strings.TrimSpace(restaurantRefID)
	if restaurantRefID == "" {
		return fmt.Errorf("restaurant ref id is required")
	}

	endpoint := c.baseURL + "/internal-service/api/restaurants/" + url.PathEscape(restaurantRefID) + "/" + resource
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return fmt.Errorf("restaurant service error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
