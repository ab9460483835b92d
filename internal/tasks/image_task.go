package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

// HandleImageProcessTask downsizes an uploaded listing image to the
// configured bounds and attaches it to the listing.
func (p *TaskProcessor) HandleImageProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ImageTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal image task payload: %v: %w", err, asynq.SkipRetry)
	}
	log := p.logger.With(zap.String("key", payload.Key), zap.Stringer("listing", payload.ListingID))

	data, _, err := p.storage.GetObject(ctx, payload.Key)
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			log.Warn("uploaded image not found")
			return fmt.Errorf("s3 object not found: %w", asynq.SkipRetry)
		}
		return fmt.Errorf("failed to download image: %w", err)
	}

	processed, outType, err := p.normalizeImage(data)
	if err != nil {
		log.Warn("rejecting uploaded image", zap.Error(err))
		if delErr := p.storage.DeleteObject(ctx, payload.Key); delErr != nil {
			log.Warn("failed to delete rejected image", zap.Error(delErr))
		}
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	if processed != nil {
		if err := p.storage.PutObject(ctx, payload.Key, processed, outType); err != nil {
			return fmt.Errorf("failed to upload processed image: %w", err)
		}
	}

	if err := p.listings.AddImage(ctx, payload.ListingID, payload.Key); err != nil {
		return fmt.Errorf("failed to attach image to listing: %w", err)
	}
	log.Info("image processed", zap.Bool("resized", processed != nil))
	return nil
}

// normalizeImage validates data and returns a downsized copy, or nil when
// the original already fits.
func (p *TaskProcessor) normalizeImage(data []byte) ([]byte, string, error) {
	maxBytes := int64(p.cfg.ImageMaxSizeMB) * 1024 * 1024
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("image exceeds max size (%d > %d bytes)", len(data), maxBytes)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("unsupported image format or corrupt image: %w", err)
	}
	maxDim := uint(p.cfg.ImageMaxDimension)
	bounds := img.Bounds()
	if uint(bounds.Dx()) <= maxDim && uint(bounds.Dy()) <= maxDim {
		return nil, "", nil
	}

	resized := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	var buf bytes.Buffer
	outType := "image/jpeg"
	if format == "png" {
		outType = "image/png"
		err = png.Encode(&buf, resized)
	} else {
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85})
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to re-encode resized image: %w", err)
	}
	if int64(buf.Len()) > maxBytes {
		return nil, "", fmt.Errorf("resized image still exceeds max size (%d bytes)", buf.Len())
	}
	return buf.Bytes(), outType, nil
}
