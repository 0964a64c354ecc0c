package validate

import "storykeeper/internal/canon"

// checker pairs a validator with a stable name. Every validator is a pure
// function over an immutable graph snapshot; adding one means extending this
// list and the Category set it reports under.
type checker struct {
	name string
	fn   func(*canon.Graph, Config) []Issue
}

func validators() []checker {
	return []checker{
		{name: "wardrobe", fn: Wardrobe},
		{name: "props", fn: Props},
		{name: "timeline", fn: Timeline},
		{name: "knowledge", fn: Knowledge},
	}
}
