package feed

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// ManifestConfig controls how a batch of Records is rendered to XML.
type ManifestConfig struct {
	DataSource         string // feed.name
	CharacterEncoding  string // gsa.characterEncoding, default UTF-8
	NoRecrawl          bool   // feed.noRecrawlBitEnabled
	CrawlImmediately   bool   // feed.crawlImmediatelyBitEnabled
}

// DefaultManifestConfig mirrors the configuration keys table's defaults.
func DefaultManifestConfig(dataSource string) ManifestConfig {
	return ManifestConfig{
		DataSource:        dataSource,
		CharacterEncoding: "UTF-8",
	}
}

type xmlMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type xmlRecord struct {
	URL      string    `xml:"url,attr"`
	Action   string    `xml:"action,attr,omitempty"`
	MimeType string    `xml:"mimetype,attr,omitempty"`
	Metadata *xmlMetaBlock `xml:"metadata,omitempty"`
}

type xmlMetaBlock struct {
	Items []xmlMeta `xml:"meta"`
}

type xmlHeader struct {
	DataSource string `xml:"datasource"`
	FeedType   string `xml:"feedtype"`
}

type xmlGroup struct {
	Records []xmlRecord `xml:"record"`
}

type xmlFeed struct {
	XMLName xml.Name `xml:"gsafeed"`
	Header  xmlHeader `xml:"header"`
	Group   xmlGroup  `xml:"group"`
}

// urlResolver turns a Record's docid into the public URL the manifest
// should advertise; it is the docid.Codec's Encode, injected so this
// package doesn't import server wiring.
type urlResolver func(rec Record) (string, error)

// BuildManifest renders a batch of Records as the GSA feed XML document,
// including the hand-written DOCTYPE prolog that encoding/xml cannot emit.
func BuildManifest(cfg ManifestConfig, records []Record, resolve urlResolver) ([]byte, error) {
	feed := xmlFeed{
		Header: xmlHeader{DataSource: cfg.DataSource, FeedType: "metadata-and-url"},
	}

	for _, rec := range records {
		resolvedURL, err := resolve(rec)
		if err != nil {
			return nil, fmt.Errorf("feed: resolve url for %q: %w", rec.ID, err)
		}

		xr := xmlRecord{URL: resolvedURL, MimeType: "text/plain"}
		if rec.Delete {
			xr.Action = "delete"
			xr.Metadata = nil
		} else {
			xr.Action = "add"
			items := make([]xmlMeta, 0, len(rec.Metadata))
			for _, m := range rec.Metadata {
				items = append(items, xmlMeta{Name: m.Name, Content: m.Content})
			}
			if len(items) == 0 {
				// The downstream parser requires a non-empty metadata
				// block; a record with no real metadata gets a synthetic
				// ispublic=true item.
				items = append(items, xmlMeta{Name: "ispublic", Content: "true"})
			}
			xr.Metadata = &xmlMetaBlock{Items: items}
		}
		feed.Group.Records = append(feed.Group.Records, xr)
	}

	body, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("feed: marshal manifest: %w", err)
	}

	encoding := cfg.CharacterEncoding
	if encoding == "" {
		encoding = "UTF-8"
	}

	var out strings.Builder
	out.WriteString(fmt.Sprintf(`<?xml version="1.0" encoding="%s"?>`+"\n", encoding))
	out.WriteString(`<!DOCTYPE gsafeed PUBLIC "-//Google//DTD GSA Feeds//EN" "">` + "\n")
	out.Write(body)
	return []byte(out.String()), nil
}
