package energy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Gnosis-MEP/benchmark-tools/eval/internal/httpjson"
)

// Reading is one sample of the energy grid webservice. Raw keeps the
// reading as served, for saving.
type Reading struct {
	Voltage    float64 `json:"voltage"`
	Frequency  float64 `json:"frequency"`
	RealEnergy float64 `json:"real_energy"`

	Raw json.RawMessage `json:"-"`
}

// ReadingSource returns the readings of a device between two Unix
// timestamps (seconds).
type ReadingSource interface {
	Readings(ctx context.Context, start, end float64, device string) ([]Reading, error)
}

// GridClient queries the energy grid webservice.
type GridClient struct {
	baseURL string
	rest    *httpjson.Client
}

var _ ReadingSource = (*GridClient)(nil)

// NewGridClient creates a client for the webservice at baseURL.
func NewGridClient(baseURL string) *GridClient {
	return &GridClient{baseURL: strings.TrimRight(baseURL, "/"), rest: httpjson.New()}
}

// ReadingsURL builds the /api/get-energy URL.
func (g *GridClient) ReadingsURL(start, end float64, device string) string {
	params := url.Values{}
	params.Set("starttimestamp", strconv.FormatFloat(start, 'f', -1, 64))
	params.Set("endtimestamp", strconv.FormatFloat(end, 'f', -1, 64))
	params.Set("device", device)
	return g.baseURL + "/api/get-energy?" + params.Encode()
}

// Readings fetches the readings of one device.
func (g *GridClient) Readings(ctx context.Context, start, end float64, device string) ([]Reading, error) {
	var resp struct {
		Readings []json.RawMessage `json:"readings"`
	}
	if err := g.rest.GetJSON(ctx, g.ReadingsURL(start, end, device), &resp); err != nil {
		return nil, fmt.Errorf("fetching energy readings of device %s: %w", device, err)
	}
	readings := make([]Reading, 0, len(resp.Readings))
	for i, raw := range resp.Readings {
		var r Reading
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decoding reading %d of device %s: %w", i, device, err)
		}
		r.Raw = raw
		readings = append(readings, r)
	}
	return readings, nil
}
