package model

import (
	"github.com/pkg/errors"
)

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the region layer.
	Index int `json:"index" yaml:"index"`
	// The human-readable label.
	Name string `json:"name" yaml:"name"`
}

// OutputClassSet ties a family to its full, zero-based list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Family Family
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// BuildNameIndexMap builds or rebuilds the name->index map.
func (s *OutputClassSet) BuildNameIndexMap() {
	s.nameToIdx = make(map[string]int, len(s.Classes))
	for _, c := range s.Classes {
		s.nameToIdx[c.Name] = c.Index
	}
}

// Names returns the labels in index order.
func (s *OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// ClassManager holds all registered class sets.
type ClassManager struct {
	sets map[Family]*OutputClassSet
}

// NewClassManager initializes and registers the given sets.
func NewClassManager(allSets ...*OutputClassSet) *ClassManager {
	mgr := &ClassManager{sets: make(map[Family]*OutputClassSet)}
	for _, set := range allSets {
		set.BuildNameIndexMap()
		mgr.sets[set.Family] = set
	}
	return mgr
}

// Set returns the class set registered for family.
func (m *ClassManager) Set(family Family) (*OutputClassSet, error) {
	set, ok := m.sets[family]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFamily, "%q not registered", family)
	}
	return set, nil
}

// GetName returns the class name for a given family and index.
func (m *ClassManager) GetName(family Family, idx int) (string, error) {
	set, err := m.Set(family)
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(set.Classes) {
		return "", errors.Wrapf(ErrInvalidConfig, "index %d out of range for family %q", idx, family)
	}
	return set.Classes[idx].Name, nil
}

// GetIndex returns the class index for a given family and name.
func (m *ClassManager) GetIndex(family Family, name string) (int, error) {
	set, err := m.Set(family)
	if err != nil {
		return -1, err
	}
	idx, ok := set.nameToIdx[name]
	if !ok {
		return -1, errors.Wrapf(ErrInvalidConfig, "name %q not found in family %q", name, family)
	}
	return idx, nil
}

// MapClass maps an index from one family to another, returning the target OutputClass.
func (m *ClassManager) MapClass(from Family, idx int, to Family) (OutputClass, error) {
	name, err := m.GetName(from, idx)
	if err != nil {
		return OutputClass{}, err
	}
	toIdx, err := m.GetIndex(to, name)
	if err != nil {
		return OutputClass{}, err
	}
	return OutputClass{Index: toIdx, Name: name}, nil
}

// COCOClasses is the 80 COCO classes as YOLO region layers number them.
var COCOClasses = OutputClassSet{
	Family: FamilyCOCO,
	Classes: []OutputClass{
		{0, "person"},
		{1, "bicycle"},
		{2, "car"},
		{3, "motorcycle"},
		{4, "airplane"},
		{5, "bus"},
		{6, "train"},
		{7, "truck"},
		{8, "boat"},
		{9, "traffic light"},
		{10, "fire hydrant"},
		{11, "stop sign"},
		{12, "parking meter"},
		{13, "bench"},
		{14, "bird"},
		{15, "cat"},
		{16, "dog"},
		{17, "horse"},
		{18, "sheep"},
		{19, "cow"},
		{20, "elephant"},
		{21, "bear"},
		{22, "zebra"},
		{23, "giraffe"},
		{24, "backpack"},
		{25, "umbrella"},
		{26, "handbag"},
		{27, "tie"},
		{28, "suitcase"},
		{29, "frisbee"},
		{30, "skis"},
		{31, "snowboard"},
		{32, "sports ball"},
		{33, "kite"},
		{34, "baseball bat"},
		{35, "baseball glove"},
		{36, "skateboard"},
		{37, "surfboard"},
		{38, "tennis racket"},
		{39, "bottle"},
		{40, "wine glass"},
		{41, "cup"},
		{42, "fork"},
		{43, "knife"},
		{44, "spoon"},
		{45, "bowl"},
		{46, "banana"},
		{47, "apple"},
		{48, "sandwich"},
		{49, "orange"},
		{50, "broccoli"},
		{51, "carrot"},
		{52, "hot dog"},
		{53, "pizza"},
		{54, "donut"},
		{55, "cake"},
		{56, "chair"},
		{57, "couch"},
		{58, "potted plant"},
		{59, "bed"},
		{60, "dining table"},
		{61, "toilet"},
		{62, "tv"},
		{63, "laptop"},
		{64, "mouse"},
		{65, "remote"},
		{66, "keyboard"},
		{67, "cell phone"},
		{68, "microwave"},
		{69, "oven"},
		{70, "toaster"},
		{71, "sink"},
		{72, "refrigerator"},
		{73, "book"},
		{74, "clock"},
		{75, "vase"},
		{76, "scissors"},
		{77, "teddy bear"},
		{78, "hair drier"},
		{79, "toothbrush"},
	},
}

// VOCClasses is the 20 Pascal VOC classes, no background.
var VOCClasses = OutputClassSet{
	Family: FamilyVOC,
	Classes: []OutputClass{
		{0, "aeroplane"},
		{1, "bicycle"},
		{2, "bird"},
		{3, "boat"},
		{4, "bottle"},
		{5, "bus"},
		{6, "car"},
		{7, "cat"},
		{8, "chair"},
		{9, "cow"},
		{10, "diningtable"},
		{11, "dog"},
		{12, "horse"},
		{13, "motorbike"},
		{14, "person"},
		{15, "pottedplant"},
		{16, "sheep"},
		{17, "sofa"},
		{18, "train"},
		{19, "tvmonitor"},
	},
}

// DefaultClassManager knows every built-in class set.
var DefaultClassManager = NewClassManager(&COCOClasses, &VOCClasses)

// LookupName returns the class name for a given family and index.
// If the family is unknown or the index out of range, it returns an empty string.
func LookupName(family Family, idx int) string {
	name, err := DefaultClassManager.GetName(family, idx)
	if err != nil {
		return ""
	}
	return name
}
