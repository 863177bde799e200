package obmark

import (
	"bytes"
	"encoding/xml"

	"github.com/pkg/errors"
)

type listAllMyBucketsResult struct {
	XMLName xml.Name
	Buckets []struct {
		Name string `xml:"Name"`
	} `xml:"Buckets>Bucket"`
}

type listBucketResult struct {
	XMLName               xml.Name
	IsTruncated           bool   `xml:"IsTruncated"`
	NextContinuationToken string `xml:"NextContinuationToken"`
	Contents              []struct {
		Key string `xml:"Key"`
	} `xml:"Contents"`
}

type errorResult struct {
	Code string `xml:"Code"`
}

func parseBucketList(body []byte) ([]string, error) {
	var result listAllMyBucketsResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrapf(ErrProtocol, "decode bucket list: %v", err)
	}
	if result.XMLName.Local != "ListAllMyBucketsResult" {
		return nil, errors.Wrapf(ErrProtocol, "unexpected bucket list root element %q", result.XMLName.Local)
	}
	names := make([]string, 0, len(result.Buckets))
	for _, b := range result.Buckets {
		names = append(names, b.Name)
	}
	return names, nil
}

func parseListPage(body []byte) (*ListPage, error) {
	var result listBucketResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, errors.Wrapf(ErrProtocol, "decode object list: %v", err)
	}
	if result.XMLName.Local != "ListBucketResult" {
		return nil, errors.Wrapf(ErrProtocol, "unexpected object list root element %q", result.XMLName.Local)
	}
	page := &ListPage{
		Keys:              make([]string, 0, len(result.Contents)),
		Truncated:         result.IsTruncated,
		ContinuationToken: result.NextContinuationToken,
	}
	for _, c := range result.Contents {
		page.Keys = append(page.Keys, c.Key)
	}
	return page, nil
}

// best effort, error bodies are optional
func parseErrorCode(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var result errorResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return ""
	}
	return result.Code
}
