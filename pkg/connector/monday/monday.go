// Package monday downloads board asset listings from the monday.com GraphQL
// API and pulls down the CXR CSV exports those assets point at.
package monday

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/prodbi/extractor/pkg/clients"
	"github.com/prodbi/extractor/pkg/config"
	"github.com/prodbi/extractor/pkg/connector"
	"github.com/prodbi/extractor/pkg/engine"
	"github.com/prodbi/extractor/pkg/errors"
	jsonpool "github.com/prodbi/extractor/pkg/json"
	"github.com/prodbi/extractor/pkg/sink"
)

const (
	// Name is the registry key.
	Name = "monday"

	defaultBaseURL    = "https://api.monday.com"
	defaultAPIVersion = "v2"

	// items_page limit used by the board query
	itemsPageLimit = 500
)

// Connector implements connector.Connector for monday.com.
type Connector struct{}

// New creates the connector.
func New() *Connector { return &Connector{} }

// Name implements connector.Connector.
func (c *Connector) Name() string { return Name }

// BuildJob implements connector.Connector. One job covers one board: the
// asset listing is a single GraphQL request, so the fetch loop terminates
// after one page.
func (c *Connector) BuildJob(cfg *config.JobConfig, deps connector.Deps) (*engine.DownloadJob, error) {
	params := cfg.Params
	if params.AuthToken == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "auth_token parameter is required")
	}
	if params.BoardID == "" {
		return nil, errors.New(errors.ErrorTypeValidation, "board_id parameter is required")
	}

	baseURL := params.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	apiVersion := params.APIVersion
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}
	root := strings.TrimSuffix(params.RootPath, "/")

	spec := engine.QuerySpec{
		Protocol: engine.ProtocolGraphQL,
		Endpoint: fmt.Sprintf("%s/%s", baseURL, apiVersion),
		PageSize: itemsPageLimit,
		Build:    makeBoardRequest(params.BoardID),
		Parse:    parseBoardAssets,
	}

	downloader := &csvDownloader{
		http:    deps.HTTP,
		sink:    deps.Sink,
		root:    root,
		boardID: params.BoardID,
		logger:  deps.Logger,
	}

	return &engine.DownloadJob{
		ConnectorID:  Name,
		Source:       params.BoardID,
		ItemType:     "assets",
		Spec:         spec,
		Auth:         engine.NewStaticTokenProvider("Authorization", params.AuthToken),
		InitialState: engine.NewCursorState(),
		Retry:        engine.NewRetryPolicy(deps.Logger),
		SafetyLimit:  cfg.Reliability.SafetyLimit,
		Filter: &engine.AssetPrefixFilter{
			NameField:      "name",
			Prefix:         "cxr",
			ExtensionField: "file_extension",
			Extension:      ".csv",
			URLField:       "public_url",
		},
		EmptyPolicy: engine.EmptyWriteSignal,
		Path:        fmt.Sprintf("%s/json/boards/%s.json", root, params.BoardID),
		Format:      sink.FormatJSON,
		PostProcess: downloader.run,
		Extra:       map[string]interface{}{"board_id": params.BoardID},
		Executor:    deps.Executor,
		Sink:        deps.Sink,
		Logger:      deps.Logger,
	}, nil
}

func makeBoardRequest(boardID string) engine.RequestBuilder {
	return func(spec engine.QuerySpec, _ engine.PageState) (*engine.PageRequest, error) {
		query := fmt.Sprintf(
			"query { boards (ids: %s) { items_page (limit: %d) { items { id name assets { id name url public_url file_extension } } } } }",
			boardID, spec.PageSize)

		body, err := jsonpool.Marshal(map[string]string{"query": query})
		if err != nil {
			return nil, err
		}

		header := http.Header{}
		header.Set("Content-Type", "application/json")

		return &engine.PageRequest{
			Method: http.MethodPost,
			URL:    spec.Endpoint,
			Header: header,
			Body:   body,
		}, nil
	}
}

// parseBoardAssets flattens the board's items into one asset record per
// attachment, carrying the owning item's id and name.
func parseBoardAssets(_ engine.PageState, body []byte) (*engine.FetchResult, error) {
	var payload struct {
		Data struct {
			Boards []struct {
				ItemsPage struct {
					Items []struct {
						ID     string          `json:"id"`
						Name   string          `json:"name"`
						Assets []engine.Record `json:"assets"`
					} `json:"items"`
				} `json:"items_page"`
			} `json:"boards"`
		} `json:"data"`
		Errors []engine.Record `json:"errors"`
	}
	if err := jsonpool.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if len(payload.Errors) > 0 {
		detail, _ := jsonpool.Marshal(payload.Errors)
		return nil, errors.New(errors.ErrorTypeAPI, "GraphQL query returned errors").
			WithDetail("errors", string(detail))
	}

	var records []engine.Record
	for _, board := range payload.Data.Boards {
		for _, item := range board.ItemsPage.Items {
			for _, asset := range item.Assets {
				record := engine.Record{
					"item_id":   item.ID,
					"item_name": item.Name,
				}
				for k, v := range asset {
					record[k] = v
				}
				records = append(records, record)
			}
		}
	}

	return &engine.FetchResult{Records: records, HasMore: false}, nil
}

// csvDownloader pulls each filtered asset's CSV export and persists it as
// {item_id}-{asset_id}.csv under the board's csv directory. Asset URLs are
// pre-signed, so the requests carry no auth header.
type csvDownloader struct {
	http    *clients.HTTPClient
	sink    sink.Sink
	root    string
	boardID string
	logger  *zap.Logger
}

func (d *csvDownloader) run(ctx context.Context, dataset *engine.Dataset, result *engine.Result) error {
	downloaded := 0

	for _, record := range dataset.Records {
		itemID, _ := record["item_id"].(string)
		assetID, _ := record["id"].(string)
		assetURL, _ := record["public_url"].(string)
		if assetURL == "" {
			continue
		}

		payload, err := d.fetch(ctx, assetURL)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeAPI,
				fmt.Sprintf("failed to download CSV asset %s", assetID))
		}

		path := fmt.Sprintf("%s/csv/%s/%s-%s.csv", d.root, d.boardID, itemID, assetID)
		if _, err := d.sink.Write(ctx, path, payload, sink.FormatCSV); err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink,
				fmt.Sprintf("failed to persist CSV asset %s", assetID))
		}

		d.logger.Info("downloaded CSV asset",
			zap.String("item_id", itemID),
			zap.String("asset_id", assetID),
			zap.String("path", path))
		downloaded++
	}

	result.Extra["csv_files_downloaded"] = downloaded
	return nil
}

func (d *csvDownloader) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.http.Get(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, errors.NewAPIError(resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}
