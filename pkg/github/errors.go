package github

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/go-github/v57/github"

	"github.com/takutakahashi/ghclient/pkg/apierror"
)

// classify turns a go-github error into the apierror taxonomy. go-github has
// already consumed the response body, so the REST error document is rebuilt
// from the decoded fields.
func classify(c *apierror.Classifier, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apierror.As(err); ok {
		return err
	}

	var (
		errResp   *github.ErrorResponse
		rateErr   *github.RateLimitError
		abuseErr  *github.AbuseRateLimitError
		resp      *http.Response
		message   string
		docURL    string
		fieldErrs []github.Error
	)
	switch {
	case errors.As(err, &rateErr):
		resp, message = rateErr.Response, rateErr.Message
	case errors.As(err, &abuseErr):
		resp, message = abuseErr.Response, abuseErr.Message
	case errors.As(err, &errResp):
		resp, message, docURL, fieldErrs = errResp.Response, errResp.Message, errResp.DocumentationURL, errResp.Errors
	}
	if resp == nil {
		return c.ClassifyTransport(err)
	}

	doc := map[string]any{"message": message}
	if docURL != "" {
		doc["documentation_url"] = docURL
	}
	if len(fieldErrs) > 0 {
		entries := make([]map[string]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			entries = append(entries, map[string]string{
				"resource": fe.Resource,
				"field":    fe.Field,
				"code":     fe.Code,
				"message":  fe.Message,
			})
		}
		doc["errors"] = entries
	}
	body, _ := json.Marshal(doc)

	return c.Classify(apierror.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Cause:      err,
	})
}
