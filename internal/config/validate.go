package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/born-ml/playlistnet/internal/model"
)

var validate = validator.New()

// Validate checks field ranges and enums, then the combinations no model
// supports. Call it after Derive.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			}
			return fmt.Errorf("config: invalid params: %s", strings.Join(fields, "; "))
		}
		return fmt.Errorf("config: invalid params: %w", err)
	}

	if err := model.CheckSupported(p.Arch(), p.RunMode()); err != nil {
		return err
	}
	if p.Arch() == model.ArchCNN && (p.MaxLen < srcnnMinExtent || p.EmbeddingSize < srcnnMinExtent) {
		return fmt.Errorf("%w: cnn needs max_len and embedding_size of at least %d, got %d and %d",
			model.ErrConfiguration, srcnnMinExtent, p.MaxLen, p.EmbeddingSize)
	}
	return nil
}
