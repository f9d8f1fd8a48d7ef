package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/util"
	"github.com/bluesky-social/indigo/xrpc"

	"github.com/ibeckermayer/camposter/internal/types"
)

const feedPostCollection = "app.bsky.feed.post"

// Account is a posting service login
type Account struct {
	Identifier string
	Secret     string
}

// XRPCError is a failed XRPC call
type XRPCError struct {
	Method     string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *XRPCError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s returned status %d", e.Method, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s: %s", e.Method, e.Code, e.Message)
}

func (e *XRPCError) Unwrap() error {
	return e.Err
}

// wrapXRPC converts an indigo status error into an XRPCError.
// Transport errors pass through unchanged.
func wrapXRPC(method string, err error) error {
	var statusErr *xrpc.Error
	if !errors.As(err, &statusErr) {
		return err
	}

	xe := &XRPCError{Method: method, StatusCode: statusErr.StatusCode, Err: err}
	var body *xrpc.XRPCError
	if errors.As(err, &body) {
		xe.Code = body.ErrStr
		xe.Message = body.Message
	}
	return xe
}

// BlueskyPoster publishes posts through the AT Protocol XRPC API
type BlueskyPoster struct {
	host   string
	client *http.Client
}

// NewBlueskyPoster creates a poster for the PDS at host, e.g. https://bsky.social
func NewBlueskyPoster(host string, timeout time.Duration) *BlueskyPoster {
	return &BlueskyPoster{
		host: strings.TrimRight(host, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Platform returns the name of the platform
func (b *BlueskyPoster) Platform() string {
	return "bluesky"
}

// Post logs in, uploads each image as a blob and creates the feed post record
func (b *BlueskyPoster) Post(ctx context.Context, account Account, post types.Post) (*types.PostResult, error) {
	xrpcc := &xrpc.Client{
		Client: b.client,
		Host:   b.host,
	}

	sess, err := comatproto.ServerCreateSession(ctx, xrpcc, &comatproto.ServerCreateSession_Input{
		Identifier: account.Identifier,
		Password:   account.Secret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", wrapXRPC("com.atproto.server.createSession", err))
	}
	if sess.AccessJwt == "" || sess.Did == "" {
		return nil, fmt.Errorf("failed to authenticate: createSession returned no session")
	}
	xrpcc.Auth = &xrpc.AuthInfo{
		AccessJwt:  sess.AccessJwt,
		RefreshJwt: sess.RefreshJwt,
		Handle:     sess.Handle,
		Did:        sess.Did,
	}

	record := &bsky.FeedPost{
		Text:      post.Text,
		CreatedAt: post.CreatedAt.UTC().Format(util.ISO8601),
		Langs:     post.Languages,
	}

	if len(post.Images) > 0 {
		embed := &bsky.EmbedImages{}
		for i, img := range post.Images {
			blob, err := b.uploadBlob(ctx, xrpcc, img.Data, img.MimeType)
			if err != nil {
				return nil, fmt.Errorf("failed to upload image %d: %w", i, err)
			}
			embed.Images = append(embed.Images, &bsky.EmbedImages_Image{
				Alt:   img.Alt,
				Image: blob,
				AspectRatio: &bsky.EmbedImages_AspectRatio{
					Width:  int64(img.AspectRatio.Width),
					Height: int64(img.AspectRatio.Height),
				},
			})
		}
		record.Embed = &bsky.FeedPost_Embed{EmbedImages: embed}
	}

	out, err := comatproto.RepoCreateRecord(ctx, xrpcc, &comatproto.RepoCreateRecord_Input{
		Repo:       sess.Did,
		Collection: feedPostCollection,
		Record:     &lexutil.LexiconTypeDecoder{Val: record},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", wrapXRPC("com.atproto.repo.createRecord", err))
	}

	return &types.PostResult{URI: out.Uri, CID: out.Cid}, nil
}

// uploadBlob sends the raw bytes tagged with their media type.
// comatproto.RepoUploadBlob would send them as */*.
func (b *BlueskyPoster) uploadBlob(ctx context.Context, xrpcc *xrpc.Client, data []byte, mimeType string) (*lexutil.LexBlob, error) {
	const method = "com.atproto.repo.uploadBlob"

	var out comatproto.RepoUploadBlob_Output
	if err := xrpcc.Do(ctx, xrpc.Procedure, mimeType, method, nil, bytes.NewReader(data), &out); err != nil {
		return nil, wrapXRPC(method, err)
	}
	if out.Blob == nil {
		return nil, fmt.Errorf("%s returned no blob", method)
	}
	return out.Blob, nil
}
