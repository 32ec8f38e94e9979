package domain

// Category is derived from the category field of catalog products.
type Category struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	ProductCount int    `json:"productCount"`
}
