package bridge

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// MediaDescriptor describes the media a host wants to cast.
type MediaDescriptor struct {
	MediaURL    string         `mapstructure:"mediaUrl"`
	Title       string         `mapstructure:"title"`
	Subtitle    string         `mapstructure:"subtitle"`
	PosterURL   string         `mapstructure:"posterUrl"`
	ContentType string         `mapstructure:"contentType"`
	Duration    *int64         `mapstructure:"duration"` // milliseconds
	Position    *int64         `mapstructure:"position"` // milliseconds
	CustomData  map[string]any `mapstructure:"customData"`
}

// DescriptorFromMap decodes the host's generic map form of a descriptor.
// Numbers given as strings are accepted.
func DescriptorFromMap(params map[string]any) (MediaDescriptor, error) {
	var d MediaDescriptor

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &d,
	})
	if err != nil {
		return MediaDescriptor{}, fmt.Errorf("descriptor decoder: %w", err)
	}

	if err := dec.Decode(params); err != nil {
		return MediaDescriptor{}, fmt.Errorf("decode descriptor: %w", err)
	}

	return d, nil
}
