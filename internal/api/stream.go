package api

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/rickgao/tweetstream/internal/config"
)

// Category selects which family of stream endpoints to use.
type Category string

const (
	CategoryPublic Category = "public"
	CategoryUser   Category = "user"
	CategorySite   Category = "site"
)

// ParseCategory converts a config string into a Category.
// An empty string selects the public category.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case "", CategoryPublic:
		return CategoryPublic, nil
	case CategoryUser:
		return CategoryUser, nil
	case CategorySite:
		return CategorySite, nil
	default:
		return "", fmt.Errorf("unknown stream category %q", s)
	}
}

// DefaultPath returns the endpoint path used when a request does not name one.
func (c Category) DefaultPath() string {
	switch c {
	case CategoryUser:
		return "user"
	case CategorySite:
		return "site"
	default:
		return "statuses/filter"
	}
}

// Endpoints holds the base URL for each category plus the REST API.
type Endpoints struct {
	StreamURL     string
	UserStreamURL string
	SiteStreamURL string
	RestURL       string
}

// DefaultEndpoints returns the production endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		StreamURL:     config.DefaultStreamURL,
		UserStreamURL: config.DefaultUserStreamURL,
		SiteStreamURL: config.DefaultSiteStreamURL,
		RestURL:       config.DefaultRestURL,
	}
}

// EndpointsFromConfig builds Endpoints from config, falling back to defaults
// for any URL left empty.
func EndpointsFromConfig(cfg config.APIConfig) Endpoints {
	e := DefaultEndpoints()
	if cfg.StreamURL != "" {
		e.StreamURL = cfg.StreamURL
	}
	if cfg.UserStreamURL != "" {
		e.UserStreamURL = cfg.UserStreamURL
	}
	if cfg.SiteStreamURL != "" {
		e.SiteStreamURL = cfg.SiteStreamURL
	}
	if cfg.RestURL != "" {
		e.RestURL = cfg.RestURL
	}
	return e
}

// Base returns the base URL for a category.
func (e Endpoints) Base(c Category) string {
	switch c {
	case CategoryUser:
		return e.UserStreamURL
	case CategorySite:
		return e.SiteStreamURL
	default:
		return e.StreamURL
	}
}

// StreamRequest describes one logical stream subscription.
type StreamRequest struct {
	Category Category
	Path     string         // e.g. "statuses/filter"; empty selects the category default
	Params   map[string]any // filter parameters, see EncodeParams
}

// NewStreamRequest builds a StreamRequest from the stream config section.
func NewStreamRequest(cfg config.StreamConfig) (StreamRequest, error) {
	category, err := ParseCategory(cfg.Category)
	if err != nil {
		return StreamRequest{}, err
	}
	return StreamRequest{
		Category: category,
		Path:     cfg.Path,
		Params:   cfg.Params,
	}, nil
}

// URL returns the full endpoint URL: base + "/" + path + ".json".
func (r StreamRequest) URL(e Endpoints) string {
	path := r.Path
	if path == "" {
		path = r.Category.DefaultPath()
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".json")
	return strings.TrimRight(e.Base(r.Category), "/") + "/" + path + ".json"
}

// Values returns the encoded request parameters.
func (r StreamRequest) Values() url.Values {
	return EncodeParams(r.Params)
}

// EncodeParams converts a parameter map into form values. Slices are
// comma-joined, booleans become "true"/"false" and nil values are skipped.
func EncodeParams(params map[string]any) url.Values {
	values := make(url.Values, len(params))

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := params[k]
		if v == nil {
			continue
		}
		values.Set(k, formatValue(v))
	}
	return values
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case []string:
		return strings.Join(x, ",")
	case []int64:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return strings.Join(parts, ",")
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
		return strings.Join(parts, ",")
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if item == nil {
				continue
			}
			parts = append(parts, formatValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(x)
	}
}
