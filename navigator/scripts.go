package navigator

// Selectors for the picker widget and the in-exam question menu. The picker
// is a react-select instance rendered inside the embedded iframe.
const (
	dropdownInputSelector = `input[id^="react-select-"][id$="-input"]`
	optionSelector        = `[id^="react-select-"][id*="-option-"]`
	controlSelector       = `[class*="control"]`
	indicatorSelector     = `[class*="indicatorContainer"]`
	singleValueSelector   = `[class*="singleValue"]`
	placeholderSelector   = `[class*="placeholder"]`
	focusedOptionSelector = `[class*="option--is-focused"]`

	questionTriggerSelector = `button[aria-haspopup="menu"]`
	questionButtonSelector  = `[role="menu"] button`
)

// zoomJS shrinks the frame so virtualized content renders inside the viewport.
const zoomJS = `(z) => {
	document.documentElement.style.zoom = String(z);
	return document.documentElement.style.zoom;
}`

// scrollStepJS scrolls to step i of n through the frame's document.
const scrollStepJS = `(i, n) => {
	const h = document.documentElement.scrollHeight || document.body.scrollHeight;
	window.scrollTo(0, Math.round(h * i / n));
	return window.scrollY;
}`

// pointerClickJS is shared by the click scripts: react-select listens for
// raw pointer events, so a bare el.click() is not enough.
const pointerClickJS = `const fire = (el) => {
		el.scrollIntoView({ block: 'center' });
		for (const type of ['mousedown', 'mouseup', 'click']) {
			el.dispatchEvent(new MouseEvent(type, { bubbles: true, cancelable: true, view: window, button: 0 }));
		}
	};`

// openDropdownJS opens the picker through its indicator, or its control when
// the indicator is absent. Returns which target was used, or "".
const openDropdownJS = `(inputSel, controlSel, indicatorSel) => {
	` + pointerClickJS + `
	const input = document.querySelector(inputSel);
	if (!input) return '';
	const control = input.closest(controlSel) || document.querySelector(controlSel);
	const indicator = (control && control.querySelector(indicatorSel)) || document.querySelector(indicatorSel);
	const target = indicator || control;
	if (!target) return '';
	fire(target);
	return indicator ? 'indicator' : 'control';
}`

// listOptionsJS returns the rendered options in DOM order.
const listOptionsJS = `(sel) => Array.from(document.querySelectorAll(sel)).map((el) => ({
	id: el.id,
	label: (el.textContent || '').trim(),
}))`

// countJS counts the elements matching sel.
const countJS = `(sel) => document.querySelectorAll(sel).length`

// clickOptionByIDJS clicks the option whose id ends in "-option-<idx>".
const clickOptionByIDJS = `(sel, idx) => {
	` + pointerClickJS + `
	const el = Array.from(document.querySelectorAll(sel)).find((o) => o.id.endsWith('-option-' + idx));
	if (!el) return false;
	fire(el);
	return true;
}`

// clickOptionAtJS clicks the idx-th option in DOM order.
const clickOptionAtJS = `(sel, idx) => {
	` + pointerClickJS + `
	const el = document.querySelectorAll(sel)[idx];
	if (!el) return false;
	fire(el);
	return true;
}`

// clickFirstJS clicks the first element matching sel.
const clickFirstJS = `(sel) => {
	` + pointerClickJS + `
	const el = document.querySelector(sel);
	if (!el) return false;
	fire(el);
	return true;
}`

// focusJS focuses the first element matching sel.
const focusJS = `(sel) => {
	const el = document.querySelector(sel);
	if (!el) return false;
	el.focus();
	return true;
}`

// selectedValueJS reads the picker's current value, "" when it still shows
// the placeholder.
const selectedValueJS = `(valueSel, placeholderSel) => {
	const v = document.querySelector(valueSel);
	const text = v ? (v.textContent || '').trim() : '';
	const p = document.querySelector(placeholderSel);
	if (p && (p.textContent || '').trim() === text) return '';
	return text;
}`

// clickButtonByTextJS clicks the first button-like element whose visible text
// contains text, case-insensitively.
const clickButtonByTextJS = `(text) => {
	const want = text.toLowerCase();
	const el = Array.from(document.querySelectorAll('button, a, [role="button"]'))
		.find((b) => (b.textContent || '').trim().toLowerCase().includes(want));
	if (!el) return false;
	el.scrollIntoView({ block: 'center' });
	el.click();
	return true;
}`

// clickQuestionJS clicks the menu button labelled with the question number,
// either zero-padded ("07") or plain ("7").
const clickQuestionJS = `(sel, padded, plain) => {
	const el = Array.from(document.querySelectorAll(sel)).find((b) => {
		const t = (b.textContent || '').trim();
		return t === padded || t === plain;
	});
	if (!el) return false;
	el.click();
	return true;
}`
