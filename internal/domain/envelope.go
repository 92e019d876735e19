package domain

// Envelope — преобразованное сообщение, которое уходит в брокер.
// Data — base64 от JSON-представления исходного payload: так мы не зависим
// от того, как брокер обращается с границей текст/байты.
type Envelope struct {
	Data       string            `json:"data"`
	Attributes map[string]string `json:"attributes"`
}
