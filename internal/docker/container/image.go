package container

import (
	"context"
	"fmt"
	"io"

	"github.com/distribution/reference"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/sirupsen/logrus"
)

// ensureImage pulls image unless the engine already has it.
func (r *DockerRunner) ensureImage(ctx context.Context, ref string) error {
	if ref == "" {
		return fmt.Errorf("%w: empty reference", ErrInvalidImage)
	}
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	named = reference.TagNameOnly(named)

	_, err = r.client.ImageInspect(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to inspect image: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok && r.pullTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.pullTimeout)
		defer cancel()
	}

	logger := r.logger.WithField("image", named.String())
	logger.Info("Pulling image")

	body, err := r.client.ImagePull(ctx, named.String(), image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrImagePull, err)
	}
	defer body.Close()

	// The pull only completes once the progress stream is drained.
	writer := logger.WriterLevel(logrus.DebugLevel)
	defer writer.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(body, writer, 0, false, nil); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %w", ErrImagePull, err)
	}

	logger.Debug("Image pulled")
	return nil
}
