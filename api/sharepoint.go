package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// CheckFolder runs the read-only SharePoint preflight for an order. The
// backend never creates anything on this path.
func (c *Client) CheckFolder(ctx context.Context, customer, orderNo string) (*FolderInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CheckTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("customer", customer)
	q.Set("order_no", orderNo)
	u := trimBase(c.cfg.SharePointURL) + "/check?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("folder check HTTP %d: %s", res.StatusCode, body)
	}
	var info FolderInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode folder check: %w", err)
	}
	return &info, nil
}

// PhotoUpload is one step of the sequential session upload. Checklist rides
// only on the first call; FolderID is empty on the first call and carries
// the issued handle afterwards. Signal is "first", "eof" or "".
type PhotoUpload struct {
	OrderNo   string
	Client    string
	Checklist json.RawMessage
	Blob      []byte
	Filename  string
	Mime      string
	FolderID  string
	Signal    string
}

// UploadPhoto posts a single photo (plus optional checklist) as multipart
// form data and returns the folder handle for subsequent calls.
func (c *Client) UploadPhoto(ctx context.Context, p PhotoUpload) (*UploadPhotoResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.UploadTimeout)
	defer cancel()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("orderNo", p.OrderNo)
	mw.WriteField("client", p.Client)
	if len(p.Checklist) > 0 {
		mw.WriteField("checklist", string(p.Checklist))
	}
	if p.FolderID != "" {
		mw.WriteField("folderId", p.FolderID)
	}

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, p.Filename))
	mime := p.Mime
	if mime == "" {
		mime = "image/jpeg"
	}
	hdr.Set("Content-Type", mime)
	fw, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(p.Blob); err != nil {
		return nil, err
	}
	mw.WriteField("fileSignal", p.Signal)
	if err := mw.Close(); err != nil {
		return nil, err
	}

	u := trimBase(c.cfg.SharePointURL) + "/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	var out UploadPhotoResponse
	json.Unmarshal(body, &out)
	if res.StatusCode != http.StatusOK || strings.Contains(string(body), `"ok":false`) {
		return nil, fmt.Errorf("photo upload HTTP %d: %s", res.StatusCode, body)
	}
	return &out, nil
}
