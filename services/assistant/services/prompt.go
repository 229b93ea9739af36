// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"github.com/AleutianAI/SmartPresence/services/assistant/datatypes"
	"github.com/AleutianAI/SmartPresence/services/assistant/memorystore"
)

// systemPrompt grounds the model on the retrieved context. French on
// purpose: the knowledge base and the audience are French-speaking.
const systemPrompt = `Tu es l'Assistant ISTA NTIC Sidi Maarouf, intégré à SmartPresence.

Consignes:
- Réponds uniquement avec les informations présentes dans le contexte fourni.
- Donne des réponses concrètes (listes, éléments, consignes) et évite les généralités.
- Quand c'est utile, cite les sources (titre + URL) à la fin sous la forme "Sources:".
- N'invente jamais de contenu. Si une information est absente, réponds: "Je n'ai pas cette information.".

Format:
- Utilise des listes à puces claires.
- Mets en évidence les éléments importants en gras.`

// buildMessages composes the provider-agnostic prompt: system (+ retrieved
// context), history verbatim, then the raw user message.
func buildMessages(message, ragContext string, history []memorystore.Turn) []datatypes.Message {
	system := systemPrompt
	if ragContext != "" {
		system += "\n\nContexte pertinent:\n" + ragContext
	}

	messages := make([]datatypes.Message, 0, 2+2*len(history))
	messages = append(messages, datatypes.Message{Role: "system", Content: system})

	for _, turn := range history {
		messages = append(messages,
			datatypes.Message{Role: "user", Content: turn.UserMessage},
			datatypes.Message{Role: "assistant", Content: turn.AssistantMessage},
		)
	}

	messages = append(messages, datatypes.Message{Role: "user", Content: message})
	return messages
}
