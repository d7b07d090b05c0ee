// Package subaccuracy scores a query subscription against a COCO-style
// annotated dataset: an image is positive when the subscription delivered
// an event for its frame, and true when its annotations contain the class.
package subaccuracy

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/Gnosis-MEP/benchmark-tools/eval"
)

// Name is the evaluation module name used in benchmark configurations.
const Name = "sub_accuracy"

// maxLineSize bounds one subscription record.
const maxLineSize = 64 << 20

// Config is the kwargs block of the subscription accuracy evaluation.
type Config struct {
	SubscriptionJL         string           `yaml:"subscription_jl"`
	DatasetAnnotationsJSON string           `yaml:"dataset_annotations_json"`
	DatasetFrameIndexJSON  string           `yaml:"dataset_frameindex_json"`
	ClassLabel             string           `yaml:"class_label"`
	ThresholdFunctions     *eval.Thresholds `yaml:"threshold_functions"`
	LoggingLevel           string           `yaml:"logging_level,omitempty"`
}

// Validate checks required keys.
func (c *Config) Validate() error {
	switch {
	case c.SubscriptionJL == "":
		return errors.New("subscription_jl is required")
	case c.DatasetAnnotationsJSON == "":
		return errors.New("dataset_annotations_json is required")
	case c.DatasetFrameIndexJSON == "":
		return errors.New("dataset_frameindex_json is required")
	case c.ClassLabel == "":
		return errors.New("class_label is required")
	}
	if c.ThresholdFunctions == nil {
		c.ThresholdFunctions = eval.NewThresholds()
	}
	return nil
}

// Annotations is the subset of a COCO annotations file used here.
type Annotations struct {
	Images []struct {
		ID       int64  `json:"id"`
		FileName string `json:"file_name"`
	} `json:"images"`
	Annotations []struct {
		ImageID    int64 `json:"image_id"`
		CategoryID int64 `json:"category_id"`
	} `json:"annotations"`
	Categories []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"categories"`
}

// Dataset maps frames to images and images to their category names.
type Dataset struct {
	// ImageCategories holds every annotated image.
	ImageCategories map[int64]map[string]bool
	imageByName     map[string]int64
	frameImage      map[int64]string
}

// NewDataset indexes the annotations and the frame index (frame number to
// image file name).
func NewDataset(ann *Annotations, frameIndex map[string]string) (*Dataset, error) {
	d := &Dataset{
		ImageCategories: make(map[int64]map[string]bool),
		imageByName:     make(map[string]int64, len(ann.Images)),
		frameImage:      make(map[int64]string, len(frameIndex)),
	}
	categories := make(map[int64]string, len(ann.Categories))
	for _, c := range ann.Categories {
		categories[c.ID] = c.Name
	}
	for _, img := range ann.Images {
		d.imageByName[img.FileName] = img.ID
	}
	for _, a := range ann.Annotations {
		name, ok := categories[a.CategoryID]
		if !ok {
			return nil, fmt.Errorf("annotation of image %d has unknown category %d", a.ImageID, a.CategoryID)
		}
		set := d.ImageCategories[a.ImageID]
		if set == nil {
			set = make(map[string]bool)
			d.ImageCategories[a.ImageID] = set
		}
		set[name] = true
	}
	for k, v := range frameIndex {
		frame, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("frame index key %q: %w", k, err)
		}
		d.frameImage[frame] = v
	}
	return d, nil
}

// ImageOfFrame resolves a frame index to its image id.
func (d *Dataset) ImageOfFrame(frame int64) (int64, bool) {
	name, ok := d.frameImage[frame]
	if !ok {
		return 0, false
	}
	id, ok := d.imageByName[name]
	return id, ok
}

// Confusion counts images by subscription outcome.
type Confusion struct {
	TruePositives, FalsePositives int
	TrueNegatives, FalseNegatives int
}

// Classify compares delivered images with the annotated class of every
// annotated image.
func Classify(d *Dataset, delivered map[int64]bool, class string) Confusion {
	var c Confusion
	for id, categories := range d.ImageCategories {
		isTrue := categories[class]
		switch {
		case delivered[id] && isTrue:
			c.TruePositives++
		case delivered[id]:
			c.FalsePositives++
		case isTrue:
			c.FalseNegatives++
		default:
			c.TrueNegatives++
		}
	}
	return c
}

// Metrics returns accuracy, precision, recall and f_score.
func (c Confusion) Metrics() (eval.Metrics, error) {
	tp, fp := float64(c.TruePositives), float64(c.FalsePositives)
	tn, fn := float64(c.TrueNegatives), float64(c.FalseNegatives)

	accuracy, err := eval.Rate("accuracy", tp+tn, tp+tn+fp+fn)
	if err != nil {
		return nil, err
	}
	precision, err := eval.Rate("precision", tp, tp+fp)
	if err != nil {
		return nil, err
	}
	recall, err := eval.Rate("recall", tp, tp+fn)
	if err != nil {
		return nil, err
	}
	fScore, err := eval.Rate("f_score", 2*precision*recall, precision+recall)
	if err != nil {
		return nil, err
	}

	var m eval.Metrics
	m.Add("accuracy", accuracy)
	m.Add("precision", precision)
	m.Add("recall", recall)
	m.Add("f_score", fScore)
	return m, nil
}

// ReadDelivered reads a subscription JSON-lines file and returns the ids of
// the images whose frames were delivered. Frames missing from the dataset
// are counted and skipped.
func ReadDelivered(path string, d *Dataset) (delivered map[int64]bool, unknown int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening subscription output: %w", err)
	}
	defer f.Close()

	delivered = make(map[int64]bool)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec struct {
			VEKGStream []struct {
				FrameIndex int64 `json:"frame_index"`
			} `json:"vekg_stream"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, 0, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		for _, ev := range rec.VEKGStream {
			id, ok := d.ImageOfFrame(ev.FrameIndex)
			if !ok {
				unknown++
				continue
			}
			delivered[id] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading %s: %w", path, err)
	}
	return delivered, unknown, nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Run loads the dataset and the subscription output and verifies the
// classification metrics.
func Run(cfg *Config) (*eval.Verdict, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	log := eval.Logger(Name, cfg.LoggingLevel)

	var ann Annotations
	if err := readJSON(cfg.DatasetAnnotationsJSON, &ann); err != nil {
		return nil, err
	}
	var frameIndex map[string]string
	if err := readJSON(cfg.DatasetFrameIndexJSON, &frameIndex); err != nil {
		return nil, err
	}
	d, err := NewDataset(&ann, frameIndex)
	if err != nil {
		return nil, err
	}
	delivered, unknown, err := ReadDelivered(cfg.SubscriptionJL, d)
	if err != nil {
		return nil, err
	}
	if unknown > 0 {
		log.Warnf("skipped %d delivered frames missing from the dataset", unknown)
	}
	log.Debugf("subscription accuracy for class %s over %d delivered images", cfg.ClassLabel, len(delivered))

	m, err := Classify(d, delivered, cfg.ClassLabel).Metrics()
	if err != nil {
		return nil, err
	}
	return eval.VerifyThresholds(m, cfg.ThresholdFunctions)
}
