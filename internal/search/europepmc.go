package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/truthcast/internal/model"
)

// EuropePMCProvider searches peer-reviewed literature through the Europe PMC REST API
type EuropePMCProvider struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewEuropePMCProvider creates a Europe PMC provider
func NewEuropePMCProvider(cfg model.EuropePMCConfig, client *http.Client, userAgent string) *EuropePMCProvider {
	if client == nil {
		client = http.DefaultClient
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://www.ebi.ac.uk/europepmc/webservices/rest"
	}
	return &EuropePMCProvider{
		client:    client,
		baseURL:   strings.TrimRight(base, "/"),
		userAgent: userAgent,
	}
}

func (p *EuropePMCProvider) Name() string { return "europepmc" }
func (p *EuropePMCProvider) Type() model.SourceType { return model.SourceTypeAcademic }

// europePMCResponse is the top-level search response
type europePMCResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []europePMCArticle `json:"result"`
	} `json:"resultList"`
}

type europePMCArticle struct {
	ID                   string `json:"id"`
	Source               string `json:"source"`
	PMID                 string `json:"pmid"`
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"`
	JournalTitle         string `json:"journalTitle"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	AbstractText         string `json:"abstractText"`
	PubTypeList          struct {
		PubType []string `json:"pubType"`
	} `json:"pubTypeList"`
}

// Search runs a core search and maps articles to results
func (p *EuropePMCProvider) Search(ctx context.Context, query string, limit int) ([]RawResult, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultLimit
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("format", "json")
	params.Set("resultType", "core")
	params.Set("pageSize", strconv.Itoa(limit))

	var resp europePMCResponse
	if err := getJSON(ctx, p.client, p.baseURL+"/search?"+params.Encode(), p.userAgent, nil, &resp); err != nil {
		return nil, fmt.Errorf("europepmc: %w", err)
	}

	results := make([]RawResult, 0, len(resp.ResultList.Result))
	for _, a := range resp.ResultList.Result {
		if isPreprint(a.PubTypeList.PubType) {
			continue
		}
		results = append(results, RawResult{
			Title:       a.Title,
			URL:         articleURL(a),
			Snippet:     a.AbstractText,
			PublishedAt: parseEuroDate(a.FirstPublicationDate),
		})
	}
	return results, nil
}

// articleURL prefers the Europe PMC article page over the DOI resolver
func articleURL(a europePMCArticle) string {
	switch {
	case a.PMID != "":
		return "https://europepmc.org/article/MED/" + a.PMID
	case a.Source != "" && a.ID != "":
		return "https://europepmc.org/article/" + a.Source + "/" + a.ID
	case a.DOI != "":
		return "https://doi.org/" + a.DOI
	}
	return ""
}

func isPreprint(types []string) bool {
	for _, t := range types {
		if strings.EqualFold(t, "preprint") {
			return true
		}
	}
	return false
}

func parseEuroDate(s string) *time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
