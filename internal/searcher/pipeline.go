package searcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/deepresearch/agentrunner/internal/adapters/parse"
	"github.com/deepresearch/agentrunner/internal/agentloop"
	"github.com/deepresearch/agentrunner/internal/orchestrator"
	"github.com/deepresearch/agentrunner/internal/rerr"
)

// runEvidencePipeline implements spec.md §4.5.1: download, upload, parse,
// analyze, and budget/assemble, each stage run concurrently across the
// batch. Items are appended in analysis-completion order; callers must not
// depend on the original URL order (deduplication happens in the tool
// wrapper, before this is called).
func (a *Agent) runEvidencePipeline(ctx context.Context, urls []string, directive string) ([]orchestrator.EvidenceItem, []string, bool) {
	type downloaded struct {
		url  string
		data []byte
	}

	failuresCh := make(chan string, len(urls))
	downloadedCh := make(chan downloaded, len(urls))

	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			data, err := a.cfg.Fetch.Fetch(ctx, url)
			if err != nil {
				failuresCh <- url
				return
			}
			downloadedCh <- downloaded{url: url, data: data}
		}(u)
	}
	wg.Wait()
	close(downloadedCh)
	close(failuresCh)

	var failures []string
	for f := range failuresCh {
		failures = append(failures, f)
	}

	type uploaded struct {
		url      string
		fileID   string
		filename string
		data     []byte
	}
	var downloads []downloaded
	for d := range downloadedCh {
		downloads = append(downloads, d)
	}

	uploadedCh := make(chan uploaded, len(downloads))
	uploadFailuresCh := make(chan string, len(downloads))
	for _, d := range downloads {
		wg.Add(1)
		go func(d downloaded) {
			defer wg.Done()
			filename := filenameFromURL(d.url)
			fileID, err := a.cfg.Files.Upload(ctx, filename, d.data)
			if err != nil {
				uploadFailuresCh <- d.url
				return
			}
			uploadedCh <- uploaded{url: d.url, fileID: fileID, filename: filename, data: d.data}
		}(d)
	}
	wg.Wait()
	close(uploadedCh)
	close(uploadFailuresCh)
	for f := range uploadFailuresCh {
		failures = append(failures, f)
	}

	var uploads []uploaded
	for u := range uploadedCh {
		uploads = append(uploads, u)
	}

	type parsed struct {
		url    string
		result orchestrator.EvidenceItem
	}
	parsedCh := make(chan parsed, len(uploads))
	parseFailuresCh := make(chan string, len(uploads))
	for _, u := range uploads {
		wg.Add(1)
		go func(u uploaded) {
			defer wg.Done()
			res, err := a.cfg.Parser.Parse(ctx, parse.Request{Filename: u.filename, Content: u.data})
			if err != nil {
				parseFailuresCh <- u.url
				return
			}
			item := orchestrator.EvidenceItem{
				URL:     u.url,
				Content: res.Markdown,
			}
			for _, asset := range res.Assets {
				item.Assets = append(item.Assets, orchestrator.Asset{
					ID:          asset.ID,
					Type:        asset.Type,
					URL:         asset.URL,
					Description: asset.Description,
				})
			}
			parsedCh <- parsed{url: u.url, result: item}
		}(u)
	}
	wg.Wait()
	close(parsedCh)
	close(parseFailuresCh)
	for f := range parseFailuresCh {
		failures = append(failures, f)
	}

	var docs []parsed
	for p := range parsedCh {
		docs = append(docs, p)
	}

	type analyzed struct {
		item orchestrator.EvidenceItem
		ok   bool
	}
	analyzedCh := make(chan analyzed, len(docs))
	for _, d := range docs {
		wg.Add(1)
		go func(d parsed) {
			defer wg.Done()
			insights, assetIDs, err := a.analyzeParsedDocument(ctx, d.result, directive)
			if err != nil || len(insights) == 0 {
				analyzedCh <- analyzed{ok: false}
				return
			}
			item := d.result
			item.Bullets = insights
			item.Summary = strings.Join(insights, " ")
			item.Relevance = relevanceFromInsightCount(len(insights))
			markSelected(item.Assets, assetIDs)
			analyzedCh <- analyzed{item: item, ok: true}
		}(d)
	}
	wg.Wait()
	close(analyzedCh)

	var accepted []orchestrator.EvidenceItem
	for r := range analyzedCh {
		if r.ok {
			accepted = append(accepted, r.item)
		}
	}

	sort.Strings(failures)
	items, budgetExhausted := a.budgetAssemble(accepted)
	return items, failures, budgetExhausted
}

// budgetAssemble truncates content to max_item_tokens and stops accepting
// further items once the running total would exceed max_total_tokens;
// already-accepted items remain.
func (a *Agent) budgetAssemble(items []orchestrator.EvidenceItem) ([]orchestrator.EvidenceItem, bool) {
	var out []orchestrator.EvidenceItem
	total := 0
	budgetExhausted := false
	for _, item := range items {
		item.Content = a.cfg.Tokens.Truncate(item.Content, a.cfg.MaxItemTokens)
		n := a.cfg.Tokens.Count(item.Content)
		if total+n > a.cfg.MaxTotalTokens {
			budgetExhausted = true
			break
		}
		total += n
		out = append(out, item)
	}
	return out, budgetExhausted
}

type analyzeOutput struct {
	Insights         []string `json:"insights"`
	SelectedAssetIDs []string `json:"selected_asset_ids"`
}

var analyzeSchema = json.RawMessage(`{
	"type":"object",
	"properties":{
		"insights":{"type":"array","items":{"type":"string"}},
		"selected_asset_ids":{"type":"array","items":{"type":"string"}}
	},
	"required":["insights","selected_asset_ids"]
}`)

// analyzeParsedDocument calls the weak LLM to extract insights and select
// relevant assets from a parsed document, per spec.md §4.5.1 stage 4.
func (a *Agent) analyzeParsedDocument(ctx context.Context, item orchestrator.EvidenceItem, directive string) ([]string, []string, error) {
	predictor, ok := a.cfg.WeakModel.(agentloop.StructuredPredictor)
	if !ok {
		return nil, nil, rerr.New(rerr.Invariant, "analyze_parsed_document: weak model does not support structured prediction")
	}
	system := "Extract the insights from this document relevant to the given directive. " +
		"Return zero insights if the document is irrelevant. Select any asset IDs worth including in a report."
	user := fmt.Sprintf("Directive: %s\n\nDocument (%s):\n%s", directive, item.URL, item.Content)
	raw, err := predictor.StructuredPredict(ctx, system, []agentloop.Message{{Role: agentloop.RoleUser, Content: user}}, analyzeSchema)
	if err != nil {
		return nil, nil, err
	}
	var out analyzeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("analyze_parsed_document: decode: %w", err)
	}
	return out.Insights, out.SelectedAssetIDs, nil
}

func markSelected(assets []orchestrator.Asset, selectedIDs []string) {
	selected := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		selected[id] = true
	}
	for i := range assets {
		assets[i].IsSelected = selected[assets[i].ID]
	}
}

func relevanceFromInsightCount(n int) float64 {
	if n >= 5 {
		return 1.0
	}
	return float64(n) / 5.0
}

func filenameFromURL(url string) string {
	parts := strings.Split(strings.TrimRight(url, "/"), "/")
	name := parts[len(parts)-1]
	if name == "" {
		name = "document"
	}
	return name
}
