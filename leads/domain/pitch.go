package domain

// Pitch es el contenido del primer contacto para un producto.
// Text se usa en backends de texto libre; Template en la Cloud API oficial,
// que exige contenido pre-aprobado para conversaciones iniciadas por la empresa.
type Pitch struct {
	Product          Product
	Text             string
	TemplateName     string
	TemplateLanguage string
}

var pitches = map[Product]Pitch{
	ProductZappy: {
		Product: ProductZappy,
		Text: "Olá! 👋\n\n" +
			"Somos do Zappy e encontrei seu negócio no Google. Parabéns pelo trabalho! 🎉\n\n" +
			"A Zappy é uma plataforma de gestão completa para Delivery e muito mais, que ajuda a:\n\n" +
			"📱 Receber pedidos por WhatsApp automaticamente\n" +
			"📊 Controlar estoque e Pedidos em tempo real\n" +
			"💰 Sem taxas diferente de outros apps de delivery. Você mantém 100% do lucro!\n\n" +
			"Segue o link para dar uma olhada! 😊\n\n" +
			"https://zappy.noviapp.com.br/\n\n" +
			"Se tiver interesse faça seu cadastro sem compromisso aqui: https://zappy.noviapp.com.br/register\n\n" +
			"Boas Vendas!",
		TemplateName:     "zappy_first_contact",
		TemplateLanguage: "pt_BR",
	},
	ProductLojaky: {
		Product: ProductLojaky,
		Text: "Olá! 👋\n\n" +
			"Somos do Lojaky e encontrei seu negócio no Google. Parabéns pelo trabalho! 🎉\n\n" +
			"O Lojaky é uma plataforma de vendas online completa para lojas e muito mais, que ajuda a:\n\n" +
			"🛒 Vender pelo WhatsApp com Loja Online\n" +
			"📦 Controlar estoque e vendas em tempo real\n" +
			"💰 Sem taxas. Você mantém 100% do lucro!\n\n" +
			"Segue o link para dar uma olhada! 😊\n\n" +
			"https://lojaky.noviapp.com.br/\n\n" +
			"Se tiver interesse faça seu cadastro sem compromisso aqui: https://lojaky.noviapp.com.br/register\n\n" +
			"Boas Vendas!",
		TemplateName:     "lojaky_first_contact",
		TemplateLanguage: "pt_BR",
	},
}

// PitchFor devuelve el contenido del producto; leads sin producto reciben el de Lojaky
func PitchFor(product Product) Pitch {
	if p, ok := pitches[product]; ok {
		return p
	}
	return pitches[ProductLojaky]
}
