package prompt

// DefaultTemplate is used when no template is configured. Placeholders are
// {{who}}, {{lineCount}}, {{fieldList}}, {{base}}, {{charInfo}}, {{chat}}
// and {{locLabel}}.
const DefaultTemplate = `You will PATCH the baseline outfit for {{who}} using ONLY explicit updates from <CHAT/>.
If no updates exist in <CHAT/>, fall back to <CHARINFO/>.
Never invent new items. If an item isn't found in either, keep the baseline value from <BASE/>.

Output EXACTLY these {{lineCount}} lines (no extra text, no markdown, no blank lines):
{{fieldList}}

<BASE>
{{base}}
</BASE>

<CHARINFO>
{{charInfo}}
</CHARINFO>

<CHAT>
{{chat}}
</CHAT>

IMPORTANT:
- Use exactly {{lineCount}} lines with labels as shown.
- Do NOT add new labels (e.g. "Legs").
- Do NOT add commentary or descriptions.
- Do NOT insert blank lines between outputs.
- If missing, keep baseline value.

Self-check:
- Are there exactly {{lineCount}} lines?
- Are the labels spelled and capitalized EXACTLY as shown above?
- No additional labels, commentary, or formatting allowed.
- If info missing, keep baseline value from <BASE/>.`

// fewShot precedes every template. It shows the base labels only.
const fewShot = `EXAMPLES (for guidance only; DO NOT copy into output):

Example A:
Headwear: none
Top (outer): blue hoodie
Top (under): white t-shirt
Bottom (outer): jeans
Bottom (under): briefs
Footwear: sneakers
{{locLabel}}: dorm room

Example B:
Headwear: black cap
Top (outer): leather jacket
Top (under): tank top
Bottom (outer): cargo pants
Bottom (under): boxers
Footwear: boots
{{locLabel}}: city street

Example C:
Headwear: baseball cap
Top (outer): trench coat
Top (under): dress shirt
Bottom (outer): slacks
Bottom (under): boxers
Footwear: dress shoes
{{locLabel}}: office

IMPORTANT:
- You must output exactly the {{lineCount}} labels listed below, spelled and capitalized as shown.
- Do NOT invent new labels (e.g. "Legs", "Panties", "Shoes").
- Do NOT add commentary, explanations, or extra lines.
- Do NOT insert blank lines between outputs.`
