package main

import (
	"fmt"
	"os"

	"github.com/wansing/schemareview/core"
	"gopkg.in/yaml.v3"
)

// importFile is the hand-off format of the ingestion
type importFile struct {
	Pages []struct {
		ID        string         `yaml:"id"`
		ClientID  string         `yaml:"client_id"`
		URL       string         `yaml:"url"`
		Title     string         `yaml:"page_title"`
		MainTopic string         `yaml:"main_topic"`
		Summary   string         `yaml:"content_summary"`
		Keywords  []core.Keyword `yaml:"keywords"`
		Entities  []core.Entity  `yaml:"entities"`
	} `yaml:"pages"`
}

func readImportFile(filename string) ([]*core.Page, error) {

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var file importFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	var pages = make([]*core.Page, 0, len(file.Pages))
	for _, in := range file.Pages {
		pages = append(pages, &core.Page{
			ID:        in.ID,
			ClientID:  in.ClientID,
			URL:       in.URL,
			Title:     in.Title,
			MainTopic: in.MainTopic,
			Summary:   in.Summary,
			Keywords:  in.Keywords,
			Entities:  in.Entities,
		})
	}
	return pages, nil
}
