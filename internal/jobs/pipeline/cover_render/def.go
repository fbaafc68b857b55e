package cover_render

import (
	"os"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"gorm.io/gorm"

	"github.com/yungbote/recall-backend/internal/data/repos"
	domainjobs "github.com/yungbote/recall-backend/internal/domain/jobs"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/gcp"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

/*
Pipeline renders the share card for an enriched content record: a 1200x630
PNG with a gradient derived from the content id, the wrapped title, the tier
badge, and a content-type caption, stored at covers/<content_id>/cover.png.

The card is cosmetic. Render or upload failures log and the job still
succeeds with generated=false; enrichment state is never touched.
*/
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	contents repos.ContentRepo
	bucket   gcp.BucketService

	titleFace   font.Face
	badgeFace   font.Face
	captionFace font.Face
}

func New(db *gorm.DB, baseLog *logger.Logger, contents repos.ContentRepo, bucket gcp.BucketService) *Pipeline {
	log := baseLog.With("job", domainjobs.TypeCoverRender)
	title, badge, caption := loadFaces(log)
	return &Pipeline{
		db:          db,
		log:         log,
		contents:    contents,
		bucket:      bucket,
		titleFace:   title,
		badgeFace:   badge,
		captionFace: caption,
	}
}

func (p *Pipeline) Type() string { return domainjobs.TypeCoverRender }

// loadFaces parses the TTF named by COVER_FONT at the three card sizes. A
// missing or unparsable font degrades to the fixed bitmap face so rendering
// keeps working in environments without font assets.
func loadFaces(log *logger.Logger) (font.Face, font.Face, font.Face) {
	path := envutil.Str("COVER_FONT", "")
	if path == "" {
		return basicfont.Face7x13, basicfont.Face7x13, basicfont.Face7x13
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Warn("cover font unreadable, using bitmap face", "path", path, "error", err)
		return basicfont.Face7x13, basicfont.Face7x13, basicfont.Face7x13
	}
	parsed, err := truetype.Parse(raw)
	if err != nil {
		log.Warn("cover font unparsable, using bitmap face", "path", path, "error", err)
		return basicfont.Face7x13, basicfont.Face7x13, basicfont.Face7x13
	}
	newFace := func(size float64) font.Face {
		return truetype.NewFace(parsed, &truetype.Options{
			Size:    size,
			DPI:     72,
			Hinting: font.HintingNone,
		})
	}
	return newFace(64), newFace(56), newFace(28)
}
