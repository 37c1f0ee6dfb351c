package schema

// AddReferenceResponse is returned after a reference upload was normalized and stored.
type AddReferenceResponse struct {
	ID       string `json:"id" msgpack:"id"`
	Filename string `json:"filename" msgpack:"filename"`
	Path     string `json:"path" msgpack:"path"`
}

// ListReferencesResponse lists stored reference filenames, newest first.
type ListReferencesResponse struct {
	References []string `json:"references" msgpack:"references"`
}
