package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/valyala/fasthttp"

	"mailwatch/models"
)

// LatestEmails fetches the newest count records, most recent first. The
// result is never nil on success.
func (c *HTTPClient) LatestEmails(ctx context.Context, count int) ([]models.EmailRecord, error) {
	q := url.Values{}
	q.Set("count", fmt.Sprintf("%d", count))

	var resp models.EmailListResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/emails/latest?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Emails == nil {
		resp.Emails = []models.EmailRecord{}
	}
	return resp.Emails, nil
}

// ClearEmails empties the backend's email history.
func (c *HTTPClient) ClearEmails(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/api/emails/clear", nil, nil)
}

// CreateEmail submits one classified record and returns it as stored.
func (c *HTTPClient) CreateEmail(ctx context.Context, rec models.EmailRecord) (models.EmailRecord, error) {
	var resp struct {
		Email models.EmailRecord `json:"email"`
	}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/emails", rec, &resp); err != nil {
		return models.EmailRecord{}, err
	}
	return resp.Email, nil
}
