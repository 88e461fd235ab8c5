package ai

const SummarizePrompt = `
# Task Context
You are a helpful assistant that writes compact episodic summaries of personal
free-text sources (conversation transcripts, voice-memo notes, information dumps).

# Detailed Task Description & Rules
- Write one or two sentences, no more.
- Capture who was involved and what the source is about.
- Use plain declarative language, no meta commentary ("This transcript...").
- Never invent facts that are not in the text.

# Background Data
%s

# Immediate Task Description or Request
Summarize the source text above in one or two sentences.
`

const ExtractPrompt = `
# Task Context
You are a helpful assistant that extracts named entities from personal free-text
sources so they can be woven into the owner's knowledge graph. Known
participants of the source: %s

# Detailed Task Description & Rules
- Identify every distinct person, concept, thing and event mentioned in the text.
- Allowed entity kinds: %s
- "person" is a human being; "concept" is an idea, topic, practice or field;
  "event" is something that happened at a point or span in time; "entity" is
  any other concrete thing (organization, place, product, pet, object).
- Use the name as it appears in the text; do not expand or invent names.
- Write a comprehensive description of what the source says about the entity.
- Record short supporting subpoints (verbatim or near-verbatim fragments).
- Give a confidence between 0 and 1 that the extraction is a real, distinct entity.
- Skip the speaker's filler, dates used purely as timestamps, and generic words.

# Output Formatting
Return a JSON object listing the extracted entities.

# Immediate Task Description or Request
Extract the entities from the following source text.

%s
`

const DisambiguatePrompt = `
# Task Context
You are a helpful assistant that decides whether a newly extracted entity is the
same real-world thing as one of the candidates already stored in the owner's
knowledge graph.

# Background Data
New entity:
- Name: %s
- Kind: %s
- Description: %s
- Context: %s

Stored candidates:
%s

# Detailed Task Description & Rules
- Choose a candidate only if you are confident it is the same real-world thing.
- Nicknames, partial names and spelling variants of the same person match
  ("Sarah" and "Sarah Chen" when context agrees).
- Different people who share a first name do NOT match.
- When in doubt, choose no match: a duplicate node is less harmful than merging
  two distinct real-world things.

# Output Formatting
Return a JSON object with "match_index" set to the zero-based index of the
chosen candidate, or -1 if none of the candidates match, and a short "reason".

# Immediate Task Description or Request
Decide which stored candidate, if any, is the same entity.
`

const RelationshipPrompt = `
# Task Context
You are a helpful assistant that proposes relationships between a newly stored
entity and its neighbours in the owner's knowledge graph.

# Background Data
New entity:
- Name: %s
- Kind: %s
- Description: %s

Neighbours mentioned in the same source:
%s

# Detailed Task Description & Rules
- Propose at most one relationship per neighbour.
- relationship_type is a single lower-case word ("friend", "studies", "owns").
- attitude is 1-5: how positively the subject regards the object.
- proximity is 1-5: how close or involved the subject is with the object.
- Only propose relationships the source text actually supports.

# Output Formatting
Return a JSON object listing the proposed relationships.

# Immediate Task Description or Request
Propose relationships for the new entity.
`
