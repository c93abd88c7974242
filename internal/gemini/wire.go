// ABOUTME: Wire types and constants for the generateContent protocol
// ABOUTME: Includes the structured reply schema and permissive safety settings

package gemini

import "encoding/json"

type genRequest struct {
	SystemInstruction *genContent     `json:"systemInstruction,omitempty"`
	Contents          []genContent    `json:"contents"`
	GenerationConfig  genConfig       `json:"generationConfig"`
	SafetySettings    []safetySetting `json:"safetySettings"`
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature      float64         `json:"temperature"`
	TopP             float64         `json:"topP"`
	TopK             int             `json:"topK"`
	MaxOutputTokens  int             `json:"maxOutputTokens"`
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   json.RawMessage `json:"responseSchema"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type genResponse struct {
	Candidates []struct {
		Content struct {
			Parts []genPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// structuredReply is the inner JSON document the model is instructed (and
// schema-forced) to produce in its first candidate part.
type structuredReply struct {
	AgentResponseText     string `json:"agentResponseText"`
	IsConversationOver    bool   `json:"isConversationOver"`
	ExtractedIntelligence *struct {
		BankAccounts       []string `json:"bankAccounts"`
		UpiIDs             []string `json:"upiIds"`
		PhishingLinks      []string `json:"phishingLinks"`
		PhoneNumbers       []string `json:"phoneNumbers"`
		SuspiciousKeywords []string `json:"suspiciousKeywords"`
	} `json:"extractedIntelligence"`
	AgentNotes string `json:"agentNotes"`
}

// replySchema mirrors structuredReply so the backend enforces the shape
// instead of hoping the prompt alone holds.
var replySchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "agentResponseText": {"type": "STRING"},
    "isConversationOver": {"type": "BOOLEAN"},
    "extractedIntelligence": {
      "type": "OBJECT",
      "properties": {
        "bankAccounts": {"type": "ARRAY", "items": {"type": "STRING"}},
        "upiIds": {"type": "ARRAY", "items": {"type": "STRING"}},
        "phishingLinks": {"type": "ARRAY", "items": {"type": "STRING"}},
        "phoneNumbers": {"type": "ARRAY", "items": {"type": "STRING"}},
        "suspiciousKeywords": {"type": "ARRAY", "items": {"type": "STRING"}}
      }
    },
    "agentNotes": {"type": "STRING"}
  },
  "required": ["agentResponseText", "isConversationOver"]
}`)

// Scam bait trips the default filters, so every category is explicitly
// opened. The decoy never produces harmful content itself; the filters
// would otherwise refuse to discuss the scammer's own material.
var safetySettings = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}
